package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/germanamz/dronebridge/pkg/attribute"
	"github.com/germanamz/dronebridge/pkg/bridge"
	"github.com/germanamz/dronebridge/pkg/command"
	"github.com/germanamz/dronebridge/pkg/datalayer"
	"github.com/germanamz/dronebridge/pkg/prefs"
	"github.com/germanamz/dronebridge/pkg/queue"
	"github.com/germanamz/dronebridge/pkg/session"
	"github.com/germanamz/dronebridge/pkg/syncer"
	"github.com/germanamz/dronebridge/pkg/watchdog"
)

var (
	// ErrIdle is returned by Run when the watchdog found the vehicle link
	// down.
	ErrIdle = errors.New("engine: vehicle link idle")
	// ErrStopped is returned when the run loop is gone or was already used.
	ErrStopped = errors.New("engine: service stopped")
)

// NotificationPath is the companion message path for show_notification.
const NotificationPath = "/action/show_notification"

const (
	taskBuffer      = 64
	lifecycleBuffer = 16
	busBuffer       = 256
)

// Deps are the collaborators a Service is built around.
type Deps struct {
	Remote session.Remote

	// Sink receives attribute snapshots and preferences. Nil logs them.
	Sink datalayer.Sink

	// Messenger receives companion messages. Nil uses Sink when it also
	// implements datalayer.Messenger.
	Messenger datalayer.Messenger

	// Bus carries republished remote callbacks. Nil creates one.
	Bus *bridge.Bus

	// AfterFunc schedules the watchdog. Nil uses real timers.
	AfterFunc watchdog.AfterFunc

	Logger *slog.Logger
}

var _ session.LifecycleListener = (*Service)(nil)

// Service owns the bridge's run loop.
type Service struct {
	cfg       Config
	log       *slog.Logger
	remote    session.Remote
	sink      datalayer.Sink
	messenger datalayer.Messenger
	bridge    *bridge.Bridge
	queue     *queue.Queue
	syncer    *syncer.Synchronizer
	watchdog  *watchdog.Watchdog

	sub       *bridge.Subscription
	tasks     chan func(context.Context)
	lifecycle chan func(context.Context)

	idle     chan struct{}
	idleOnce sync.Once
	done     chan struct{}
	running  atomic.Bool
}

// New creates a Service from the given configuration. Remote callbacks
// published on the bus from this point on are delivered once Run starts;
// until then the bus holds them and, once full, makes the publisher wait.
func New(cfg Config, deps Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Remote == nil {
		return nil, errors.New("engine: remote session is required")
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	sink := deps.Sink
	if sink == nil {
		sink = datalayer.LogSink{Logger: log}
	}

	messenger := deps.Messenger
	if messenger == nil {
		if m, ok := sink.(datalayer.Messenger); ok {
			messenger = m
		} else {
			messenger = datalayer.LogSink{Logger: log}
		}
	}

	bus := deps.Bus
	if bus == nil {
		bus = bridge.NewBus()
	}

	s := &Service{
		cfg:       cfg,
		log:       log,
		remote:    deps.Remote,
		sink:      sink,
		messenger: messenger,
		bridge:    bridge.New(bus, log),
		tasks:     make(chan func(context.Context), taskBuffer),
		lifecycle: make(chan func(context.Context), lifecycleBuffer),
		idle:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	exec := &command.Executor{
		Remote:     deps.Remote,
		TowerAppID: cfg.TowerAppID(),
		Submit:     s.submitLater,
		Go:         func(task func()) { go task() },
		Logger:     log,
	}

	s.queue = queue.New(deps.Remote, exec.Execute, log)
	s.syncer = syncer.New(deps.Remote, sink, syncer.Options{
		Prefix: cfg.SinkPrefix(),
		Logger: log,
	})
	s.watchdog = watchdog.New(deps.Remote, s.terminate, watchdog.Options{
		Period:    cfg.WatchdogPeriodDuration(),
		AfterFunc: deps.AfterFunc,
		Logger:    log,
	})
	s.sub = bus.SubscribeLossless(busBuffer)

	return s, nil
}

// Bridge returns the callback the remote session transport reports into.
func (s *Service) Bridge() *bridge.Bridge { return s.bridge }

// Pending returns the number of commands waiting for the session to start.
func (s *Service) Pending() int { return s.queue.Len() }

// Run executes the loop until ctx is done or the watchdog terminates the
// bridge, then tears down: the watchdog stops, the bus subscription ends,
// pending commands are dropped and the session is unregistered. Run returns
// ErrIdle on watchdog termination and nil on cancellation. It can be called
// once.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.teardown(ctx)

	p, err := prefs.Load(s.cfg.PreferencesFile)
	if err != nil {
		s.log.WarnContext(ctx, "preferences unreadable, using defaults", "error", err)
	}
	s.pushPreferences(ctx, p)

	if s.cfg.PreferencesFile != "" {
		go s.watchPreferences(ctx)
	}

	s.watchdog.Start()
	s.log.InfoContext(ctx, "bridge running", "watchdog_period", s.watchdog.Period())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.idle:
			s.log.InfoContext(ctx, "shutting down idle bridge", "session", s.remote.State())
			return ErrIdle
		case task := <-s.lifecycle:
			task(ctx)
		case task := <-s.tasks:
			task(ctx)
		case n, ok := <-s.sub.C:
			if !ok {
				return nil
			}
			s.handle(ctx, n)
		}
	}
}

func (s *Service) teardown(ctx context.Context) {
	s.watchdog.Stop()
	s.bridge.Bus().Unsubscribe(s.sub)
	close(s.done)

	if n := s.queue.Drop(); n > 0 {
		s.log.InfoContext(ctx, "dropped pending commands", "count", n)
	}

	s.remote.Unregister()
}

func (s *Service) terminate() {
	s.idleOnce.Do(func() { close(s.idle) })
}

// post hands task to the run loop.
func (s *Service) post(ctx context.Context, task func(context.Context)) error {
	select {
	case s.tasks <- task:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch handles one externally triggered action on the run loop and
// reports what became of it. Malformed or unknown actions are not errors;
// they come back as command.Ignored. Every dispatch restarts the watchdog
// countdown.
func (s *Service) Dispatch(ctx context.Context, action string, args json.RawMessage) (command.Outcome, error) {
	res := make(chan command.Outcome, 1)

	err := s.post(ctx, func(ctx context.Context) {
		res <- s.dispatch(ctx, action, args)
	})
	if err != nil {
		return command.Ignored, err
	}

	select {
	case o := <-res:
		return o, nil
	case <-ctx.Done():
		return command.Ignored, ctx.Err()
	case <-s.done:
		select {
		case o := <-res:
			return o, nil
		default:
			return command.Ignored, ErrStopped
		}
	}
}

func (s *Service) dispatch(ctx context.Context, action string, args json.RawMessage) command.Outcome {
	defer s.watchdog.Reset()

	if action == command.ActionShowNotification {
		return s.showNotification(ctx)
	}

	c, ok := command.Parse(action, args)
	if !ok {
		s.log.WarnContext(ctx, "ignoring malformed action", "action", action)
		return command.Ignored
	}

	return s.submit(ctx, c)
}

func (s *Service) submit(ctx context.Context, c command.Command) command.Outcome {
	if s.queue.Submit(ctx, c) {
		return command.Queued
	}
	return command.Executed
}

// submitLater hands a follow-up command produced off the loop back to it.
func (s *Service) submitLater(ctx context.Context, c command.Command) {
	err := s.post(ctx, func(ctx context.Context) { s.submit(ctx, c) })
	if err != nil {
		s.log.DebugContext(ctx, "follow-up command dropped", "kind", c.Kind, "error", err)
	}
}

// showNotification forwards the request to the companion and, while no
// vehicle is connected, checks whether the Tower app holds a link that can
// be adopted.
func (s *Service) showNotification(ctx context.Context) command.Outcome {
	if err := s.messenger.Send(ctx, NotificationPath, nil); err != nil {
		s.log.WarnContext(ctx, "companion message failed", "path", NotificationPath, "error", err)
	}

	if s.remote.IsConnected() {
		return command.Executed
	}

	return s.submit(ctx, command.CheckConnectedApps())
}

func (s *Service) handle(ctx context.Context, n bridge.Notification) {
	switch n.Name {
	case bridge.NotificationDroneEvent:
		return
	case bridge.NotificationConnectionFailed:
		s.log.WarnContext(ctx, "vehicle connection failed",
			"code", n.Payload[bridge.ExtraErrorCode],
			"message", n.Payload[bridge.ExtraErrorMessage])
		return
	case attribute.EventConnected, attribute.EventDisconnected:
		s.log.InfoContext(ctx, "vehicle link changed", "event", n.Name, "session", s.remote.State())
	}

	pushed := s.syncer.OnRawEvent(ctx, session.Event{Name: n.Name, Payload: n.Payload})
	s.log.DebugContext(ctx, "drone event", "event", n.Name, "published", pushed)
}

// OnTowerConnected starts the session, publishes every attribute and runs
// the commands queued so far.
func (s *Service) OnTowerConnected() {
	s.postLifecycle("tower_connected", func(ctx context.Context) {
		if s.remote.IsStarted() {
			return
		}
		if err := s.remote.Register(); err != nil {
			s.log.ErrorContext(ctx, "session register failed", "error", err)
			return
		}

		s.log.InfoContext(ctx, "session started")
		s.syncer.RefreshAll(ctx)
		s.queue.OnStarted(ctx)
	})
}

// OnTowerDisconnected records the loss of the control service link.
func (s *Service) OnTowerDisconnected() {
	s.postLifecycle("tower_disconnected", func(ctx context.Context) {
		s.log.WarnContext(ctx, "control service disconnected")
	})
}

// OnServiceInterrupted unregisters the session so later commands queue
// until the control service is back.
func (s *Service) OnServiceInterrupted(reason string) {
	s.postLifecycle("service_interrupted", func(ctx context.Context) {
		s.log.WarnContext(ctx, "control service interrupted", "reason", reason)
		s.remote.Unregister()
	})
}

// postLifecycle queues a transport lifecycle task without blocking the
// transport's read loop.
func (s *Service) postLifecycle(name string, task func(context.Context)) {
	select {
	case <-s.done:
		s.log.Debug("lifecycle callback dropped", "callback", name, "error", ErrStopped)
		return
	default:
	}

	select {
	case s.lifecycle <- task:
	default:
		s.log.Warn("lifecycle callback dropped, run loop busy", "callback", name)
	}
}

func (s *Service) pushPreferences(ctx context.Context, p prefs.Preferences) {
	if err := prefs.Push(ctx, s.sink, p); err != nil {
		s.log.WarnContext(ctx, "preferences push failed", "error", err)
	}
}

func (s *Service) watchPreferences(ctx context.Context) {
	err := prefs.Watch(ctx, s.cfg.PreferencesFile, s.log, func(p prefs.Preferences) {
		_ = s.post(ctx, func(ctx context.Context) { s.pushPreferences(ctx, p) })
	})
	if err != nil {
		s.log.WarnContext(ctx, "preferences watch stopped", "error", err)
	}
}
