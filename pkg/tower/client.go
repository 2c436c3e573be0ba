// Package tower is the websocket client for the external control service
// that owns the vehicle link. Vehicle calls are one-way requests; their
// effects come back later as events. Attribute values pushed by the service
// are kept in memory as encoded snapshots so reads never touch the network.
package tower

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/germanamz/dronebridge/pkg/attribute"
	"github.com/germanamz/dronebridge/pkg/codec"
	"github.com/germanamz/dronebridge/pkg/session"
)

var (
	// ErrNoLink is returned when a call is made while the service link is
	// down.
	ErrNoLink = errors.New("tower: not connected to control service")
	// ErrNotStarted is returned by vehicle calls made before Register.
	ErrNotStarted = errors.New("tower: session not started")
)

var _ session.Remote = (*Client)(nil)

// Config configures a Client.
type Config struct {
	URL            string
	AppID          string
	Header         http.Header
	DialTimeout    time.Duration // Default 10s.
	RequestTimeout time.Duration // Default 5s.
	Logger         *slog.Logger
}

type reply struct {
	apps []session.App
	err  error
}

// Client is a session.Remote backed by a websocket to the control service.
type Client struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan reply

	started   atomic.Bool
	connected atomic.Bool
	dropped   atomic.Bool

	attrMu sync.RWMutex
	attrs  map[attribute.Key][]byte
}

// New creates a Client. Nothing is dialed until Run.
func New(cfg Config) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		cfg:     cfg,
		log:     cfg.Logger,
		pending: make(map[string]chan reply),
		attrs:   make(map[attribute.Key][]byte),
	}
}

// Run dials the control service, reports OnTowerConnected and delivers
// inbound frames until ctx is done or the link drops, then reports
// OnTowerDisconnected. A clean shutdown through ctx returns nil.
func (c *Client) Run(ctx context.Context, lifecycle session.LifecycleListener, cb session.Callback) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, &websocket.DialOptions{
		HTTPHeader: c.cfg.Header,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("tower: dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		for id, ch := range c.pending {
			ch <- reply{err: ErrNoLink}
			delete(c.pending, id)
		}
		c.mu.Unlock()

		c.started.Store(false)
		c.connected.Store(false)
		c.dropped.Store(false)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		lifecycle.OnTowerDisconnected()
	}()

	if err := c.send(ctx, MethodHello, map[string]string{"app_id": c.cfg.AppID}); err != nil {
		return err
	}

	c.log.InfoContext(ctx, "control service connected", "url", c.cfg.URL)
	lifecycle.OnTowerConnected()

	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("tower: read: %w", err)
		}

		c.handle(ctx, msg, lifecycle, cb)
	}
}

func (c *Client) handle(ctx context.Context, msg Message, lifecycle session.LifecycleListener, cb session.Callback) {
	switch msg.Type {
	case TypeEvent:
		for k, v := range msg.Attributes {
			c.storeAttribute(attribute.Key(k), v)
		}
		switch msg.Name {
		case attribute.EventConnected:
			c.connected.Store(true)
			c.dropped.Store(false)
		case attribute.EventDisconnected:
			c.connected.Store(false)
			c.dropped.Store(true)
		}
		cb.OnEvent(msg.Name, msg.Payload)

	case TypeAttribute:
		c.storeAttribute(attribute.Key(msg.Key), msg.Value)

	case TypeConnectionFailed:
		cb.OnConnectionFailed(msg.Code, msg.Message)

	case TypeInterrupted:
		lifecycle.OnServiceInterrupted(msg.Reason)

	case TypeReply:
		c.resolve(msg)

	default:
		c.log.DebugContext(ctx, "ignoring control service frame", "type", msg.Type)
	}
}

func (c *Client) storeAttribute(key attribute.Key, raw json.RawMessage) {
	if !key.Valid() {
		return
	}

	c.attrMu.Lock()
	defer c.attrMu.Unlock()

	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		delete(c.attrs, key)
		return
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn("undecodable attribute", "attribute", string(key), "error", err)
		return
	}

	snapshot, err := codec.Marshal(v)
	if err != nil {
		c.log.Warn("unencodable attribute", "attribute", string(key), "error", err)
		return
	}

	c.attrs[key] = snapshot
}

func (c *Client) resolve(msg Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()

	if !ok {
		return
	}

	var err error
	if msg.Error != "" {
		err = fmt.Errorf("tower: %s", msg.Error)
	}
	ch <- reply{apps: msg.Apps, err: err}
}

func (c *Client) send(ctx context.Context, method string, params any) error {
	return c.sendID(ctx, uuid.NewString(), method, params)
}

func (c *Client) sendID(ctx context.Context, id, method string, params any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNoLink
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, Request{ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("tower: %s: %w", method, err)
	}

	return nil
}

func (c *Client) vehicleCall(ctx context.Context, method string, params any) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	return c.send(ctx, method, params)
}

// Register starts the session on the control service.
func (c *Client) Register() error {
	if err := c.send(context.Background(), MethodRegister, nil); err != nil {
		return err
	}
	c.dropped.Store(false)
	c.started.Store(true)
	return nil
}

// Unregister stops the session. The request is best-effort.
func (c *Client) Unregister() {
	if !c.started.Swap(false) {
		return
	}
	if err := c.send(context.Background(), MethodUnregister, nil); err != nil && !errors.Is(err, ErrNoLink) {
		c.log.Warn("unregister failed", "error", err)
	}
}

// State returns the lifecycle state. A started session whose vehicle link
// went down reports Disconnected until the link comes back.
func (c *Client) State() session.State {
	switch {
	case !c.started.Load():
		return session.NotStarted
	case c.connected.Load():
		return session.Connected
	case c.dropped.Load():
		return session.Disconnected
	default:
		return session.Started
	}
}

func (c *Client) IsStarted() bool   { return c.started.Load() }
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Attribute returns the latest encoded snapshot for key, or nil.
func (c *Client) Attribute(key attribute.Key) []byte {
	c.attrMu.RLock()
	defer c.attrMu.RUnlock()

	v, ok := c.attrs[key]
	if !ok {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (c *Client) Connect(ctx context.Context, p session.ConnectionParameter) error {
	return c.vehicleCall(ctx, MethodConnect, p)
}

func (c *Client) Disconnect(ctx context.Context) error {
	return c.vehicleCall(ctx, MethodDisconnect, nil)
}

func (c *Client) Arm(ctx context.Context, arm bool) error {
	return c.vehicleCall(ctx, MethodArm, map[string]bool{"arm": arm})
}

func (c *Client) ChangeVehicleMode(ctx context.Context, mode session.VehicleMode) error {
	return c.vehicleCall(ctx, MethodChangeVehicleMode, map[string]string{"mode": string(mode)})
}

func (c *Client) GuidedTakeoff(ctx context.Context, altitude float64) error {
	return c.vehicleCall(ctx, MethodGuidedTakeoff, map[string]float64{"altitude": altitude})
}

func (c *Client) SetGuidedAltitude(ctx context.Context, altitude float64) error {
	return c.vehicleCall(ctx, MethodSetGuidedAltitude, map[string]float64{"altitude": altitude})
}

func (c *Client) EnableFollowMe(ctx context.Context, ft session.FollowType) error {
	return c.vehicleCall(ctx, MethodEnableFollowMe, map[string]string{"type": string(ft)})
}

func (c *Client) DisableFollowMe(ctx context.Context) error {
	return c.vehicleCall(ctx, MethodDisableFollowMe, nil)
}

func (c *Client) UpdateFollowParams(ctx context.Context, params map[string]float64) error {
	return c.vehicleCall(ctx, MethodUpdateFollowParams, params)
}

// ConnectedApps asks the control service which client apps hold a vehicle
// link. It is the one call that waits for a reply.
func (c *Client) ConnectedApps(ctx context.Context) ([]session.App, error) {
	id := uuid.NewString()
	ch := make(chan reply, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := c.sendID(ctx, id, MethodConnectedApps, nil); err != nil {
		cleanup()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	select {
	case r := <-ch:
		return r.apps, r.err
	case <-ctx.Done():
		cleanup()
		return nil, fmt.Errorf("tower: %s: %w", MethodConnectedApps, ctx.Err())
	}
}
