package auth

import "time"

type options struct {
	issuer   string
	audience string
	now      func() time.Time
	leeway   time.Duration
}

// Option configures a Verifier or an Issuer.
type Option func(*options)

// WithIssuer binds tokens to an issuer. Verifiers reject tokens whose iss differs.
func WithIssuer(issuer string) Option {
	return func(o *options) { o.issuer = issuer }
}

// WithAudience binds tokens to an audience. Verifiers reject tokens not addressed to it.
func WithAudience(audience string) Option {
	return func(o *options) { o.audience = audience }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLeeway tolerates clock skew when checking exp.
func WithLeeway(d time.Duration) Option {
	return func(o *options) { o.leeway = d }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
