// Package bridge turns remote session callbacks into in-process
// notifications. The Bridge is the only type the transport calls into; the
// rest of the bridge process subscribes to the Bus and never sees transport
// types. Republishing does no filtering or buffering, and a failure while
// publishing is swallowed because the remote caller cannot handle replies.
package bridge

import (
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/germanamz/dronebridge/pkg/session"
)

// Stable notification names and payload keys.
const (
	NotificationConnectionFailed = "dronebridge.connection_failed"
	NotificationDroneEvent       = "dronebridge.drone_event"

	ExtraErrorCode    = "error_code"
	ExtraErrorMessage = "error_message"
)

var _ session.Callback = (*Bridge)(nil)

// Bridge republishes remote callbacks on a Bus.
type Bridge struct {
	bus *Bus
	log *slog.Logger
	now func() time.Time
}

// New creates a Bridge publishing to bus. A nil logger uses slog.Default().
func New(bus *Bus, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{bus: bus, log: log, now: time.Now}
}

// Bus returns the bus the bridge publishes to.
func (b *Bridge) Bus() *Bus { return b.bus }

// OnConnectionFailed republishes a vehicle connection failure.
func (b *Bridge) OnConnectionFailed(code int, message string) {
	defer b.swallow("connection_failed")

	b.bus.Publish(Notification{
		Name: NotificationConnectionFailed,
		Payload: map[string]any{
			ExtraErrorCode:    code,
			ExtraErrorMessage: message,
		},
		Timestamp: b.now(),
	})
}

// OnEvent republishes a generic drone event: first a payload-free
// NotificationDroneEvent, then a notification named after the event that
// carries a copy of its payload.
func (b *Bridge) OnEvent(name string, payload map[string]any) {
	defer b.swallow(name)

	now := b.now()
	b.bus.Publish(Notification{Name: NotificationDroneEvent, Timestamp: now})

	if name == "" {
		return
	}

	var extras map[string]any
	if payload != nil {
		extras = maps.Clone(payload)
	}

	b.bus.Publish(Notification{Name: name, Payload: extras, Timestamp: now})
}

func (b *Bridge) swallow(name string) {
	if r := recover(); r != nil {
		b.log.Error("remote callback failed", "callback", name, "error", fmt.Sprint(r))
	}
}
