// Package notify turns break detection into notifications: one-shot alerts
// at every remaining break boundary of the day, and a single ongoing
// notification describing the row that is active right now.
//
// Delivery is delegated to a Backend. Every backend call is best-effort:
// failures are logged and never reach the caller.
package notify

import (
	"context"
	"time"
)

// DefaultOngoingID is the fixed slot used for the ongoing notification.
const DefaultOngoingID = 9999

// Alert is a point-in-time notification.
type Alert struct {
	ID    int       `json:"id"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}

// Backend accepts schedule/cancel requests for point-in-time alerts.
type Backend interface {
	// RequestPermission asks the platform for permission to notify. A
	// denial does not stop later calls; they are simply expected to fail.
	RequestPermission(ctx context.Context) (bool, error)
	// Cancel removes the given point-in-time alerts. Unknown ids are ignored.
	Cancel(ctx context.Context, ids []int) error
	// CancelOne removes a single notification, including the ongoing one.
	CancelOne(ctx context.Context, id int) error
	// ScheduleAt registers a one-shot alert that fires at a.At.
	ScheduleAt(ctx context.Context, a Alert) error
}

// OngoingBackend is implemented by backends that may support a persistent,
// replaceable notification. OngoingSupported is the capability check;
// a false answer turns every ongoing operation into a no-op.
type OngoingBackend interface {
	Backend
	OngoingSupported() bool
	// ScheduleOngoing shows or replaces the notification with the given id.
	ScheduleOngoing(ctx context.Context, id int, title, body string) error
}

// ongoingOf checks b for ongoing-notification support.
func ongoingOf(b Backend) (OngoingBackend, bool) {
	ob, ok := b.(OngoingBackend)
	if !ok || !ob.OngoingSupported() {
		return nil, false
	}
	return ob, true
}
