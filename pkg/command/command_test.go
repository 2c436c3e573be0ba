package command

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/dronebridge/pkg/attribute"
	"github.com/germanamz/dronebridge/pkg/codec"
	"github.com/germanamz/dronebridge/pkg/session"
	"github.com/germanamz/dronebridge/pkg/session/sessiontest"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		action string
		args   string
		kind   Kind
		check  func(t *testing.T, c Command)
	}{
		{ActionConnect, `{"connection":{"type":"udp","port":14550}}`, KindConnect, func(t *testing.T, c Command) {
			assert.Equal(t, "udp", c.Connection.Type)
			assert.Equal(t, 14550, c.Connection.Port)
		}},
		{ActionDisconnect, ``, KindDisconnect, nil},
		{ActionArm, `{}`, KindArm, nil},
		{ActionDisarm, ``, KindDisarm, nil},
		{ActionTakeOff, ``, KindTakeOff, func(t *testing.T, c Command) {
			assert.Equal(t, DefaultTakeoffAltitude, c.Value)
		}},
		{ActionTakeOff, `{"altitude":12}`, KindTakeOff, func(t *testing.T, c Command) {
			assert.Equal(t, 12, c.Value)
		}},
		{ActionChangeMode, `{"mode":"LOITER"}`, KindChangeMode, func(t *testing.T, c Command) {
			assert.Equal(t, session.VehicleMode("LOITER"), c.Mode)
		}},
		{ActionStartFollow, ``, KindStartFollow, nil},
		{ActionStopFollow, ``, KindStopFollow, nil},
		{ActionSetFollowType, `{"follow_type":"circle"}`, KindSetFollowType, func(t *testing.T, c Command) {
			assert.Equal(t, session.FollowCircle, c.FollowType)
		}},
		{ActionSetGuidedAltitude, `{"altitude":0}`, KindSetGuidedAltitude, func(t *testing.T, c Command) {
			assert.Equal(t, 0, c.Value)
		}},
		{ActionSetFollowRadius, `{"radius":8}`, KindSetFollowRadius, func(t *testing.T, c Command) {
			assert.Equal(t, 8, c.Value)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.action+tt.args, func(t *testing.T) {
			c, ok := Parse(tt.action, json.RawMessage(tt.args))
			require.True(t, ok)
			assert.Equal(t, tt.kind, c.Kind)
			assert.NotEmpty(t, c.ID)
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		action string
		args   string
	}{
		{"unknown action", "barrel_roll", ``},
		{"bad json", ActionArm, `{`},
		{"connect without params", ActionConnect, `{}`},
		{"connect blank type", ActionConnect, `{"connection":{"type":""}}`},
		{"mode blank", ActionChangeMode, `{"mode":"  "}`},
		{"follow type unknown", ActionSetFollowType, `{"follow_type":"orbit"}`},
		{"altitude missing", ActionSetGuidedAltitude, `{}`},
		{"altitude sentinel", ActionSetGuidedAltitude, `{"altitude":-1}`},
		{"radius missing", ActionSetFollowRadius, ``},
		{"radius negative", ActionSetFollowRadius, `{"radius":-3}`},
		{"takeoff zero", ActionTakeOff, `{"altitude":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Parse(tt.action, json.RawMessage(tt.args))
			assert.False(t, ok)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "take_off", KindTakeOff.String())
	assert.Equal(t, "check_connected_apps", KindCheckConnectedApps.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestExecute_VehicleCalls(t *testing.T) {
	fake := sessiontest.New()
	ex := &Executor{Remote: fake}
	ctx := context.Background()

	mode, _ := ChangeMode("GUIDED")
	ft, _ := SetFollowType("above")
	alt, _ := SetGuidedAltitude(20)
	rad, _ := SetFollowRadius(6)
	takeoff, _ := TakeOff(DefaultTakeoffAltitude)
	conn, _ := Connect(&session.ConnectionParameter{Type: "tcp", Address: "10.0.0.1", Port: 5760})

	for _, c := range []Command{conn, Arm(), takeoff, mode, ft, alt, rad, StopFollow(), Disarm(), Disconnect()} {
		require.NoError(t, ex.Execute(ctx, c))
	}

	assert.Equal(t, []string{
		"connect(tcp)",
		"arm(true)",
		"takeOff(5)",
		"changeMode(GUIDED)",
		"enableFollowMe(above)",
		"setGuidedAltitude(20)",
		"updateFollowParams(radius=6)",
		"disableFollowMe()",
		"arm(false)",
		"disconnect()",
	}, fake.Calls())
}

func TestExecute_StartFollowKeepsCurrentMode(t *testing.T) {
	fake := sessiontest.New()
	data, err := codec.Marshal(map[string]any{"state": "active", "mode": "circle"})
	require.NoError(t, err)
	fake.SetAttribute(attribute.FollowState, data)

	ex := &Executor{Remote: fake}
	require.NoError(t, ex.Execute(context.Background(), StartFollow()))

	assert.Equal(t, []string{"enableFollowMe(circle)"}, fake.Calls())
}

func TestExecute_StartFollowDefaultsToLeash(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"no attribute", nil},
		{"garbage", []byte{0xff}},
		{"unknown mode", mustMarshal(t, map[string]any{"mode": "orbit"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := sessiontest.New()
			fake.SetAttribute(attribute.FollowState, tt.data)

			ex := &Executor{Remote: fake}
			require.NoError(t, ex.Execute(context.Background(), StartFollow()))
			assert.Equal(t, []string{"enableFollowMe(leash)"}, fake.Calls())
		})
	}
}

func TestExecute_WrapsSessionError(t *testing.T) {
	fake := sessiontest.New()
	boom := errors.New("link down")
	fake.FailCalls(boom)

	ex := &Executor{Remote: fake}
	err := ex.Execute(context.Background(), Arm())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "command: arm")
}

func TestExecute_UnknownKind(t *testing.T) {
	ex := &Executor{Remote: sessiontest.New()}
	assert.Error(t, ex.Execute(context.Background(), Command{Kind: Kind(99)}))
}

func TestExecute_CheckConnectedAppsSubmitsConnect(t *testing.T) {
	fake := sessiontest.New()
	fake.SetApps([]session.App{
		{ID: "com.example.other", Connection: &session.ConnectionParameter{Type: "usb"}},
		{ID: DefaultTowerAppID, Connection: &session.ConnectionParameter{Type: "udp", Port: 14550}},
	}, nil)

	var submitted []Command
	ex := &Executor{
		Remote: fake,
		Submit: func(_ context.Context, c Command) { submitted = append(submitted, c) },
	}

	require.NoError(t, ex.Execute(context.Background(), CheckConnectedApps()))

	require.Len(t, submitted, 1)
	assert.Equal(t, KindConnect, submitted[0].Kind)
	assert.Equal(t, "udp", submitted[0].Connection.Type)
	assert.Equal(t, []string{"connectedApps()"}, fake.Calls())
}

func TestExecute_CheckConnectedAppsInlineWithoutSubmit(t *testing.T) {
	fake := sessiontest.New()
	fake.SetApps([]session.App{
		{ID: "custom.tower", Connection: &session.ConnectionParameter{Type: "bluetooth"}},
	}, nil)

	ex := &Executor{Remote: fake, TowerAppID: "custom.tower"}
	require.NoError(t, ex.Execute(context.Background(), CheckConnectedApps()))

	assert.Equal(t, []string{"connectedApps()", "connect(bluetooth)"}, fake.Calls())
}

func TestExecute_CheckConnectedAppsRunsThroughGo(t *testing.T) {
	fake := sessiontest.New()
	fake.SetApps([]session.App{
		{ID: DefaultTowerAppID, Connection: &session.ConnectionParameter{Type: "usb"}},
	}, nil)

	var (
		deferred  []func()
		submitted []Command
	)
	ex := &Executor{
		Remote: fake,
		Submit: func(_ context.Context, c Command) { submitted = append(submitted, c) },
		Go:     func(task func()) { deferred = append(deferred, task) },
	}

	require.NoError(t, ex.Execute(context.Background(), CheckConnectedApps()))
	assert.Empty(t, fake.Calls(), "lookup must not run on the caller")
	require.Len(t, deferred, 1)

	deferred[0]()
	assert.Equal(t, []string{"connectedApps()"}, fake.Calls())
	require.Len(t, submitted, 1)
	assert.Equal(t, "usb", submitted[0].Connection.Type)
}

func TestExecute_CheckConnectedAppsNoMatch(t *testing.T) {
	fake := sessiontest.New()
	fake.SetApps([]session.App{{ID: DefaultTowerAppID}}, nil)

	ex := &Executor{Remote: fake}
	require.NoError(t, ex.Execute(context.Background(), CheckConnectedApps()))

	assert.Equal(t, []string{"connectedApps()"}, fake.Calls())
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := codec.Marshal(v)
	require.NoError(t, err)
	return data
}
