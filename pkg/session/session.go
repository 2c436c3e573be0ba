// Package session defines the contract between the bridge and the remote
// vehicle session owned by the external control service. Implementations
// hold attribute state in memory; only Connect and Disconnect are requests
// whose completion arrives later as a lifecycle event.
package session

import (
	"context"
	"strings"

	"github.com/germanamz/dronebridge/pkg/attribute"
)

// State is the lifecycle state of a remote session.
type State int

const (
	NotStarted State = iota
	Started
	Connected
	Disconnected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Started:
		return "started"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectionParameter describes how the control service reaches the vehicle.
type ConnectionParameter struct {
	Type    string            `json:"type" yaml:"type"`
	Address string            `json:"address,omitempty" yaml:"address"`
	Port    int               `json:"port,omitempty" yaml:"port"`
	Extras  map[string]string `json:"extras,omitempty" yaml:"extras"`
}

// Valid reports whether the parameter names a connection type.
func (p ConnectionParameter) Valid() bool {
	return strings.TrimSpace(p.Type) != "" && p.Port >= 0
}

// VehicleMode is a flight mode label such as "GUIDED" or "LOITER".
type VehicleMode string

// FollowType selects the follow-me behaviour.
type FollowType string

const (
	FollowLeash      FollowType = "leash"
	FollowLead       FollowType = "lead"
	FollowRight      FollowType = "right"
	FollowLeft       FollowType = "left"
	FollowCircle     FollowType = "circle"
	FollowAbove      FollowType = "above"
	FollowSplineLead FollowType = "spline_lead"
	FollowGuidedScan FollowType = "guided_scan"
)

var followTypes = map[FollowType]struct{}{
	FollowLeash:      {},
	FollowLead:       {},
	FollowRight:      {},
	FollowLeft:       {},
	FollowCircle:     {},
	FollowAbove:      {},
	FollowSplineLead: {},
	FollowGuidedScan: {},
}

// ParseFollowType returns the follow type named by s, case-insensitively.
func ParseFollowType(s string) (FollowType, bool) {
	ft := FollowType(strings.ToLower(strings.TrimSpace(s)))
	_, ok := followTypes[ft]
	return ft, ok
}

// FollowParamRadius is the follow parameter key for the follow radius in
// meters.
const FollowParamRadius = "radius"

// FollowState is the decoded FOLLOW_STATE attribute.
type FollowState struct {
	State  string     `json:"state"`
	Mode   FollowType `json:"mode"`
	Radius float64    `json:"radius,omitempty"`
}

// App is a client application registered with the control service.
type App struct {
	ID         string               `json:"app_id"`
	Connection *ConnectionParameter `json:"connection,omitempty"`
}

// Event is a raw change notification from the session.
type Event struct {
	Name    string
	Payload map[string]any
}

// Callback is the remote-facing notification contract. Calls are one-way:
// implementations must not block and never report failures back.
type Callback interface {
	OnConnectionFailed(code int, message string)
	OnEvent(name string, payload map[string]any)
}

// LifecycleListener observes the link to the control service itself.
type LifecycleListener interface {
	OnTowerConnected()
	OnTowerDisconnected()
	OnServiceInterrupted(reason string)
}

// Remote is the vehicle session as seen by the bridge.
type Remote interface {
	// Register starts the session: after it returns IsStarted reports true
	// and attribute updates flow.
	Register() error
	// Unregister stops the session and returns it to NotStarted.
	Unregister()

	State() State
	IsStarted() bool
	IsConnected() bool

	// Attribute returns the encoded snapshot for key, or nil when the
	// session holds no value for it.
	Attribute(key attribute.Key) []byte

	Connect(ctx context.Context, p ConnectionParameter) error
	Disconnect(ctx context.Context) error
	Arm(ctx context.Context, arm bool) error
	ChangeVehicleMode(ctx context.Context, mode VehicleMode) error
	GuidedTakeoff(ctx context.Context, altitude float64) error
	SetGuidedAltitude(ctx context.Context, altitude float64) error
	EnableFollowMe(ctx context.Context, ft FollowType) error
	DisableFollowMe(ctx context.Context) error
	UpdateFollowParams(ctx context.Context, params map[string]float64) error
	ConnectedApps(ctx context.Context) ([]App, error)
}
