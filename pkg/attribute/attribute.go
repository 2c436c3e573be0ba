// Package attribute defines the normalized vehicle attribute keys that are
// synchronized to observers, the raw session event names, and the fixed table
// that maps one onto the other.
package attribute

import "slices"

// Key identifies one category of vehicle state.
type Key string

const (
	Altitude    Key = "altitude"
	Attitude    Key = "attitude"
	Battery     Key = "battery"
	FollowState Key = "follow_state"
	GuidedState Key = "guided_state"
	GPS         Key = "gps"
	Home        Key = "home"
	Signal      Key = "signal"
	State       Key = "state"
	Type        Key = "type"
)

// Raw event names emitted by the remote session.
const (
	EventConnected          = "connected"
	EventDisconnected       = "disconnected"
	EventStateUpdated       = "state-updated"
	EventVehicleMode        = "vehicle-mode"
	EventArming             = "arming"
	EventBatteryUpdated     = "battery-updated"
	EventSignalUpdated      = "signal-updated"
	EventGPSPosition        = "gps-position"
	EventGPSFix             = "gps-fix"
	EventGPSCount           = "gps-count"
	EventGuidedPointUpdated = "guided-point-updated"
	EventFollowStart        = "follow-start"
	EventFollowStop         = "follow-stop"
	EventFollowUpdate       = "follow-update"
	EventHomeUpdated        = "home-updated"
)

var allKeys = []Key{
	Altitude,
	Attitude,
	Battery,
	FollowState,
	GuidedState,
	GPS,
	Home,
	Signal,
	State,
	Type,
}

var eventKeys = map[string]Key{
	EventStateUpdated:       State,
	EventVehicleMode:        State,
	EventArming:             State,
	EventBatteryUpdated:     Battery,
	EventSignalUpdated:      Signal,
	EventGPSPosition:        GPS,
	EventGPSFix:             GPS,
	EventGPSCount:           GPS,
	EventGuidedPointUpdated: GuidedState,
	EventFollowStart:        FollowState,
	EventFollowStop:         FollowState,
	EventFollowUpdate:       FollowState,
	EventHomeUpdated:        Home,
}

// All returns every known key. The returned slice is a copy.
func All() []Key { return slices.Clone(allKeys) }

// Valid reports whether k is a known key.
func (k Key) Valid() bool { return slices.Contains(allKeys, k) }

// IsLifecycle reports whether the event marks a link connect or disconnect.
func IsLifecycle(event string) bool {
	return event == EventConnected || event == EventDisconnected
}

// Resolve returns the keys to publish for a raw event. Lifecycle events
// resolve to every known key, mapped events to exactly one key and anything
// else to nil.
func Resolve(event string) []Key {
	if IsLifecycle(event) {
		return All()
	}

	if k, ok := eventKeys[event]; ok {
		return []Key{k}
	}

	return nil
}
