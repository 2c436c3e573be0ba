package control

import (
	"context"
	"encoding/json"

	"github.com/germanamz/dronebridge/pkg/command"
)

// Dispatcher accepts an action trigger.
type Dispatcher interface {
	Dispatch(ctx context.Context, action string, args json.RawMessage) (command.Outcome, error)
}

const (
	emptySchema    = `{"type":"object"}`
	altitudeSchema = `{"type":"object","properties":{"altitude":{"type":"integer","description":"Altitude in meters."}}}`
)

// VehicleActions returns one action per dispatcher trigger. Every handler
// reports the dispatch outcome as its text result.
func VehicleActions(d Dispatcher) []Action {
	specs := []struct {
		name, desc, schema string
	}{
		{command.ActionConnect, "Connect to the vehicle with the given connection parameters.",
			`{"type":"object","properties":{"connection":{"type":"object","properties":{` +
				`"type":{"type":"string","description":"Link type, e.g. usb, udp or tcp."},` +
				`"address":{"type":"string"},` +
				`"port":{"type":"integer"},` +
				`"extras":{"type":"object"}},"required":["type"]}},"required":["connection"]}`},
		{command.ActionDisconnect, "Disconnect from the vehicle.", emptySchema},
		{command.ActionArm, "Arm the vehicle motors.", emptySchema},
		{command.ActionDisarm, "Disarm the vehicle motors.", emptySchema},
		{command.ActionTakeOff, "Guided takeoff. Altitude defaults to 5 meters.", altitudeSchema},
		{command.ActionChangeMode, "Change the vehicle flight mode.",
			`{"type":"object","properties":{"mode":{"type":"string","description":"Flight mode name, e.g. GUIDED."}},"required":["mode"]}`},
		{command.ActionStartFollow, "Start follow-me using the current follow type.", emptySchema},
		{command.ActionStopFollow, "Stop follow-me.", emptySchema},
		{command.ActionSetFollowType, "Switch follow-me to another follow type.",
			`{"type":"object","properties":{"follow_type":{"type":"string","enum":` +
				`["leash","lead","right","left","circle","above","spline_lead","guided_scan"]}},"required":["follow_type"]}`},
		{command.ActionSetGuidedAltitude, "Set the guided altitude.", altitudeSchema},
		{command.ActionSetFollowRadius, "Set the follow-me radius.",
			`{"type":"object","properties":{"radius":{"type":"integer","description":"Radius in meters."}},"required":["radius"]}`},
		{command.ActionShowNotification, "Show the bridge notification on the companion display.", emptySchema},
	}

	actions := make([]Action, 0, len(specs))
	for _, s := range specs {
		name := s.name
		actions = append(actions, Action{
			Name:        name,
			Description: s.desc,
			InputSchema: json.RawMessage(s.schema),
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				outcome, err := d.Dispatch(ctx, name, args)
				if err != nil {
					return "", err
				}
				return outcome.String(), nil
			},
		})
	}

	return actions
}
