package domain

import "context"

// Severity classifies a notification message.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityFailure
)

// Notifier delivers one-way status messages about a run. Delivery is best
// effort: implementations report failures to the caller, which logs them
// and moves on.
type Notifier interface {
	Notify(ctx context.Context, sev Severity, text string) error
}
