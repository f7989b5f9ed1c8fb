package subscriber

import "fmt"

// Consumption stages.
const (
	StageDecode  = "decode"
	StageProcess = "process"
)

// ConsumptionError reports a payload that could not be handled. It is logged
// and counted; the subscription carries on.
type ConsumptionError struct {
	Stage   string
	OrderID int64
	Err     error
}

func (e *ConsumptionError) Error() string {
	if e.OrderID > 0 {
		return fmt.Sprintf("%s order %d: %v", e.Stage, e.OrderID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ConsumptionError) Unwrap() error { return e.Err }
