package command

// ActionShowNotification asks the companion to show the bridge notification.
// It is dispatched like a command but never queued itself.
const ActionShowNotification = "show_notification"

// Outcome reports what a dispatch did with a trigger.
type Outcome int

const (
	// Ignored means the trigger was unknown or malformed.
	Ignored Outcome = iota
	// Executed means the command ran against a started session.
	Executed
	// Queued means the command is waiting for the session to start.
	Queued
)

func (o Outcome) String() string {
	switch o {
	case Executed:
		return "executed"
	case Queued:
		return "queued"
	default:
		return "ignored"
	}
}
