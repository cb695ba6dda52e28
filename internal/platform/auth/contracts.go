package auth

import (
	"context"
	"time"
)

// Logger captures the minimal logging contract used by the auth package.
type Logger interface {
	Printf(format string, args ...any)
}

// MetricsRecorder records verification outcomes for observability.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// MetricsRecorderFunc adapts a function to MetricsRecorder.
type MetricsRecorderFunc func(context.Context, string, bool, string, time.Duration)

// RecordVerification implements MetricsRecorder.
func (f MetricsRecorderFunc) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if f != nil {
		f(ctx, kind, success, reason, duration)
	}
}

// ServiceIdentity captures details about an authenticated service principal,
// such as the HMAC-signed caller behind a webhook or internal request.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity attaches the verified service identity to the request context.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext retrieves the identity stored by the middleware.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
