// Package command models the vehicle actions a client can trigger. A Command
// is a tagged value: Kind selects the action and only the payload field that
// kind uses is set. Constructors refuse malformed arguments by returning
// false, so a degenerate Command never reaches the queue.
package command

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/germanamz/dronebridge/pkg/session"
)

// Kind identifies the action a Command performs.
type Kind int

const (
	KindConnect Kind = iota + 1
	KindDisconnect
	KindArm
	KindDisarm
	KindTakeOff
	KindChangeMode
	KindStartFollow
	KindStopFollow
	KindSetFollowType
	KindSetGuidedAltitude
	KindSetFollowRadius
	KindCheckConnectedApps
)

// Action names accepted by Parse.
const (
	ActionConnect           = "connect"
	ActionDisconnect        = "disconnect"
	ActionArm               = "arm"
	ActionDisarm            = "disarm"
	ActionTakeOff           = "take_off"
	ActionChangeMode        = "change_mode"
	ActionStartFollow       = "start_follow"
	ActionStopFollow        = "stop_follow"
	ActionSetFollowType     = "set_follow_type"
	ActionSetGuidedAltitude = "set_guided_altitude"
	ActionSetFollowRadius   = "set_follow_radius"
)

var kindNames = map[Kind]string{
	KindConnect:            ActionConnect,
	KindDisconnect:         ActionDisconnect,
	KindArm:                ActionArm,
	KindDisarm:             ActionDisarm,
	KindTakeOff:            ActionTakeOff,
	KindChangeMode:         ActionChangeMode,
	KindStartFollow:        ActionStartFollow,
	KindStopFollow:         ActionStopFollow,
	KindSetFollowType:      ActionSetFollowType,
	KindSetGuidedAltitude:  ActionSetGuidedAltitude,
	KindSetFollowRadius:    ActionSetFollowRadius,
	KindCheckConnectedApps: "check_connected_apps",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// DefaultTakeoffAltitude is the guided takeoff altitude in meters used when
// the caller does not give one.
const DefaultTakeoffAltitude = 5

// Command is one queued vehicle action.
type Command struct {
	ID   string
	Kind Kind

	Connection session.ConnectionParameter // KindConnect
	Mode       session.VehicleMode         // KindChangeMode
	FollowType session.FollowType          // KindSetFollowType
	Value      int                         // Altitude or radius in meters.
}

func newCommand(k Kind) Command {
	return Command{ID: uuid.NewString(), Kind: k}
}

// Connect builds a connect command. It returns false when p is nil or names
// no connection type.
func Connect(p *session.ConnectionParameter) (Command, bool) {
	if p == nil || !p.Valid() {
		return Command{}, false
	}
	c := newCommand(KindConnect)
	c.Connection = *p
	return c, true
}

func Disconnect() Command  { return newCommand(KindDisconnect) }
func Arm() Command         { return newCommand(KindArm) }
func Disarm() Command      { return newCommand(KindDisarm) }
func StartFollow() Command { return newCommand(KindStartFollow) }
func StopFollow() Command  { return newCommand(KindStopFollow) }

// CheckConnectedApps builds the command that looks for a vehicle link opened
// by the Tower app behind the bridge's back.
func CheckConnectedApps() Command { return newCommand(KindCheckConnectedApps) }

// TakeOff builds a guided takeoff to altitude meters. It returns false for a
// non-positive altitude.
func TakeOff(altitude int) (Command, bool) {
	if altitude <= 0 {
		return Command{}, false
	}
	c := newCommand(KindTakeOff)
	c.Value = altitude
	return c, true
}

// ChangeMode builds a vehicle mode change. It returns false for a blank mode.
func ChangeMode(mode string) (Command, bool) {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		return Command{}, false
	}
	c := newCommand(KindChangeMode)
	c.Mode = session.VehicleMode(mode)
	return c, true
}

// SetFollowType builds a follow type change. It returns false for an unknown
// follow type.
func SetFollowType(name string) (Command, bool) {
	ft, ok := session.ParseFollowType(name)
	if !ok {
		return Command{}, false
	}
	c := newCommand(KindSetFollowType)
	c.FollowType = ft
	return c, true
}

// SetGuidedAltitude builds a guided altitude change. Negative values,
// including the -1 "unset" sentinel, return false.
func SetGuidedAltitude(altitude int) (Command, bool) {
	if altitude < 0 {
		return Command{}, false
	}
	c := newCommand(KindSetGuidedAltitude)
	c.Value = altitude
	return c, true
}

// SetFollowRadius builds a follow radius change. Negative values return
// false.
func SetFollowRadius(radius int) (Command, bool) {
	if radius < 0 {
		return Command{}, false
	}
	c := newCommand(KindSetFollowRadius)
	c.Value = radius
	return c, true
}

// Args is the JSON argument object accepted by Parse.
type Args struct {
	Connection *session.ConnectionParameter `json:"connection,omitempty"`
	Mode       string                       `json:"mode,omitempty"`
	FollowType string                       `json:"follow_type,omitempty"`
	Altitude   *int                         `json:"altitude,omitempty"`
	Radius     *int                         `json:"radius,omitempty"`
}

// Parse builds a Command from an action name and its JSON arguments. Unknown
// actions, undecodable arguments and missing or out-of-range values all
// return false.
func Parse(action string, raw json.RawMessage) (Command, bool) {
	var args Args
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return Command{}, false
		}
	}

	switch action {
	case ActionConnect:
		return Connect(args.Connection)
	case ActionDisconnect:
		return Disconnect(), true
	case ActionArm:
		return Arm(), true
	case ActionDisarm:
		return Disarm(), true
	case ActionTakeOff:
		if args.Altitude == nil {
			return TakeOff(DefaultTakeoffAltitude)
		}
		return TakeOff(*args.Altitude)
	case ActionChangeMode:
		return ChangeMode(args.Mode)
	case ActionStartFollow:
		return StartFollow(), true
	case ActionStopFollow:
		return StopFollow(), true
	case ActionSetFollowType:
		return SetFollowType(args.FollowType)
	case ActionSetGuidedAltitude:
		if args.Altitude == nil {
			return Command{}, false
		}
		return SetGuidedAltitude(*args.Altitude)
	case ActionSetFollowRadius:
		if args.Radius == nil {
			return Command{}, false
		}
		return SetFollowRadius(*args.Radius)
	default:
		return Command{}, false
	}
}
