package messaging

import "fmt"

// PublicationError reports a broadcast that did not reach the medium. It is
// logged and counted, never returned to an order-creation caller.
type PublicationError struct {
	OrderID int64
	Channel string
	Err     error
}

func (e *PublicationError) Error() string {
	return fmt.Sprintf("publish order %d on %s: %v", e.OrderID, e.Channel, e.Err)
}

func (e *PublicationError) Unwrap() error { return e.Err }
