// Package sessiontest provides an in-memory session.Remote for tests.
package sessiontest

import (
	"context"
	"fmt"
	"sync"

	"github.com/germanamz/dronebridge/pkg/attribute"
	"github.com/germanamz/dronebridge/pkg/session"
)

var _ session.Remote = (*Fake)(nil)

// Fake is a session.Remote that records every vehicle call in order. It is
// safe for concurrent use.
type Fake struct {
	mu         sync.Mutex
	started    bool
	connected  bool
	dropped    bool
	attributes map[attribute.Key][]byte
	apps       []session.App
	appsErr    error
	appsGate   <-chan struct{}
	callErr    error
	calls      []string
}

// New returns a Fake that is neither started nor connected.
func New() *Fake {
	return &Fake{attributes: make(map[attribute.Key][]byte)}
}

// SetStarted forces the started flag without recording a call.
func (f *Fake) SetStarted(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = v
}

// SetConnected forces the physical link flag.
func (f *Fake) SetConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = f.connected && !v
	f.connected = v
}

// SetAttribute stores an encoded snapshot. A nil value removes the key.
func (f *Fake) SetAttribute(key attribute.Key, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value == nil {
		delete(f.attributes, key)
		return
	}
	f.attributes[key] = value
}

// SetApps sets the ConnectedApps result.
func (f *Fake) SetApps(apps []session.App, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps = apps
	f.appsErr = err
}

// GateApps makes ConnectedApps wait until gate is closed or its context
// is done.
func (f *Fake) GateApps(gate <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appsGate = gate
}

// FailCalls makes every subsequent vehicle call return err (after
// recording it).
func (f *Fake) FailCalls(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callErr = err
}

// Calls returns the recorded vehicle calls in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.callErr
}

func (f *Fake) Register() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *Fake) Unregister() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
}

func (f *Fake) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case !f.started:
		return session.NotStarted
	case f.connected:
		return session.Connected
	case f.dropped:
		return session.Disconnected
	default:
		return session.Started
	}
}

func (f *Fake) IsStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) Attribute(key attribute.Key) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.attributes[key]
	if !ok {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (f *Fake) Connect(_ context.Context, p session.ConnectionParameter) error {
	return f.record("connect(%s)", p.Type)
}

func (f *Fake) Disconnect(_ context.Context) error {
	return f.record("disconnect()")
}

func (f *Fake) Arm(_ context.Context, arm bool) error {
	return f.record("arm(%t)", arm)
}

func (f *Fake) ChangeVehicleMode(_ context.Context, mode session.VehicleMode) error {
	return f.record("changeMode(%s)", mode)
}

func (f *Fake) GuidedTakeoff(_ context.Context, altitude float64) error {
	return f.record("takeOff(%g)", altitude)
}

func (f *Fake) SetGuidedAltitude(_ context.Context, altitude float64) error {
	return f.record("setGuidedAltitude(%g)", altitude)
}

func (f *Fake) EnableFollowMe(_ context.Context, ft session.FollowType) error {
	return f.record("enableFollowMe(%s)", ft)
}

func (f *Fake) DisableFollowMe(_ context.Context) error {
	return f.record("disableFollowMe()")
}

func (f *Fake) UpdateFollowParams(_ context.Context, params map[string]float64) error {
	return f.record("updateFollowParams(radius=%g)", params[session.FollowParamRadius])
}

func (f *Fake) ConnectedApps(ctx context.Context) ([]session.App, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "connectedApps()")
	gate := f.appsGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apps, f.appsErr
}
