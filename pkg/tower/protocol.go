package tower

import (
	"encoding/json"

	"github.com/germanamz/dronebridge/pkg/session"
)

// Request methods sent to the control service.
const (
	MethodHello              = "hello"
	MethodRegister           = "register"
	MethodUnregister         = "unregister"
	MethodConnect            = "connect"
	MethodDisconnect         = "disconnect"
	MethodArm                = "arm"
	MethodChangeVehicleMode  = "change_vehicle_mode"
	MethodGuidedTakeoff      = "guided_takeoff"
	MethodSetGuidedAltitude  = "set_guided_altitude"
	MethodEnableFollowMe     = "enable_follow_me"
	MethodDisableFollowMe    = "disable_follow_me"
	MethodUpdateFollowParams = "update_follow_params"
	MethodConnectedApps      = "connected_apps"
)

// Inbound message types.
const (
	TypeEvent            = "event"
	TypeAttribute        = "attribute"
	TypeConnectionFailed = "connection_failed"
	TypeInterrupted      = "interrupted"
	TypeReply            = "reply"
)

// Request is one outbound call.
type Request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Message is one inbound frame. Only the fields its Type uses are set.
type Message struct {
	Type string `json:"type"`

	// event
	Name       string                     `json:"name,omitempty"`
	Payload    map[string]any             `json:"payload,omitempty"`
	Attributes map[string]json.RawMessage `json:"attributes,omitempty"`

	// attribute
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`

	// connection_failed
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// interrupted
	Reason string `json:"reason,omitempty"`

	// reply
	ID    string        `json:"id,omitempty"`
	Apps  []session.App `json:"apps,omitempty"`
	Error string        `json:"error,omitempty"`
}
