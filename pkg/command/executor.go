package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/germanamz/dronebridge/pkg/attribute"
	"github.com/germanamz/dronebridge/pkg/codec"
	"github.com/germanamz/dronebridge/pkg/session"
)

// DefaultTowerAppID is the application ID of the Tower ground control app.
const DefaultTowerAppID = "org.droidplanner.android"

// Executor runs Commands against a remote session.
type Executor struct {
	Remote session.Remote

	// TowerAppID is the app whose vehicle link CheckConnectedApps adopts.
	// Empty means DefaultTowerAppID.
	TowerAppID string

	// Submit re-enters the dispatcher with follow-up commands. When nil,
	// follow-ups run inline.
	Submit func(ctx context.Context, c Command)

	// Go runs the connected-apps lookup, which waits on a network reply.
	// When nil, it runs inline.
	Go func(task func())

	Logger *slog.Logger
}

// Execute performs c. Errors come from the session and are for logging
// only.
func (e *Executor) Execute(ctx context.Context, c Command) error {
	r := e.Remote

	var err error
	switch c.Kind {
	case KindConnect:
		err = r.Connect(ctx, c.Connection)
	case KindDisconnect:
		err = r.Disconnect(ctx)
	case KindArm:
		err = r.Arm(ctx, true)
	case KindDisarm:
		err = r.Arm(ctx, false)
	case KindTakeOff:
		err = r.GuidedTakeoff(ctx, float64(c.Value))
	case KindChangeMode:
		err = r.ChangeVehicleMode(ctx, c.Mode)
	case KindStartFollow:
		err = r.EnableFollowMe(ctx, e.currentFollowType())
	case KindStopFollow:
		err = r.DisableFollowMe(ctx)
	case KindSetFollowType:
		err = r.EnableFollowMe(ctx, c.FollowType)
	case KindSetGuidedAltitude:
		err = r.SetGuidedAltitude(ctx, float64(c.Value))
	case KindSetFollowRadius:
		err = r.UpdateFollowParams(ctx, map[string]float64{
			session.FollowParamRadius: float64(c.Value),
		})
	case KindCheckConnectedApps:
		if e.Go == nil {
			err = e.adoptTowerConnection(ctx)
			break
		}
		e.Go(func() {
			if err := e.adoptTowerConnection(ctx); err != nil {
				e.logger().WarnContext(ctx, "connected apps check failed", "error", err)
			}
		})
	default:
		return fmt.Errorf("command: unknown kind %d", c.Kind)
	}

	if err != nil {
		return fmt.Errorf("command: %s: %w", c.Kind, err)
	}

	return nil
}

// currentFollowType keeps the follow mode the vehicle already reports, or
// falls back to leash.
func (e *Executor) currentFollowType() session.FollowType {
	data := e.Remote.Attribute(attribute.FollowState)
	if data == nil {
		return session.FollowLeash
	}

	var fs session.FollowState
	if err := codec.Unmarshal(data, &fs); err != nil {
		e.logger().Warn("undecodable follow state", "error", err)
		return session.FollowLeash
	}

	if ft, ok := session.ParseFollowType(string(fs.Mode)); ok {
		return ft
	}

	return session.FollowLeash
}

func (e *Executor) adoptTowerConnection(ctx context.Context) error {
	apps, err := e.Remote.ConnectedApps(ctx)
	if err != nil {
		return err
	}

	appID := e.TowerAppID
	if appID == "" {
		appID = DefaultTowerAppID
	}

	for _, app := range apps {
		if app.ID != appID {
			continue
		}

		c, ok := Connect(app.Connection)
		if !ok {
			return nil
		}

		e.logger().InfoContext(ctx, "adopting tower app connection", "app", app.ID, "type", c.Connection.Type)
		if e.Submit != nil {
			e.Submit(ctx, c)
			return nil
		}

		return e.Execute(ctx, c)
	}

	return nil
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
