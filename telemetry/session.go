// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/log"
	"github.com/dev-BJ/CleanEnv-Dashboard/internal/wallclock"
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt"
)

type (
	// State is the lifecycle state of the broker session.
	State int

	// Snapshot is a consistent copy of the session state. It shares nothing
	// with the controller and may be retained freely.
	Snapshot struct {
		State            State
		ClientID         string
		ConnectionStatus bool
		Quality          Quality

		// LastUpdateTime is zero until the first reading is accepted.
		LastUpdateTime  time.Time
		IsReceivingData bool

		Latest  *SensorReading
		History []SensorReading

		LastError string
		Feedback  string

		// Revision increases with every state change.
		Revision uint64
	}

	// Controller owns a single broker session: it connects, subscribes,
	// routes every message through the normalizer into the history, and
	// maintains the quality and liveness signals. All state is guarded by one
	// mutex; transport callbacks and timers from a torn-down session are
	// discarded by generation.
	Controller struct {
		mu      sync.Mutex
		options ControllerOptions
		log     log.Logger

		history  *History
		liveness *Debouncer

		state      State
		connected  bool
		quality    Quality
		lastUpdate time.Time
		latest     *SensorReading
		lastError  string
		feedback   string
		revision   uint64

		gen     uint64
		session *session
		tick    *ticker

		handlers  []stateHandler
		handlerID uint64
	}

	// The transport and everything tied to its lifetime.
	session struct {
		client    mqtt.Client
		topics    []string
		ctx       context.Context
		cancel    context.CancelFunc
		release   []func()
		subs      sync.WaitGroup
		connected bool
	}

	ticker struct{ timer wallclock.Timer }

	stateHandler struct {
		id uint64
		fn func(Snapshot)
	}
)

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

const (
	feedbackConnecting    = "Connecting to MQTT broker"
	feedbackConnected     = "Connected to MQTT broker"
	feedbackReconnecting  = "Reconnecting to MQTT broker"
	feedbackOffline       = "MQTT client is offline"
	feedbackDisconnected  = "Disconnected from MQTT broker"
	feedbackEnded         = "MQTT connection ended"
	feedbackConnectFailed = "Failed to connect to MQTT broker"

	errParseFailed = "Failed to parse sensor data"
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateReconnecting: "reconnecting",
	StateClosed:       "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText and UnmarshalText encode the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// NewController creates an idle controller with an empty history.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		history: NewHistory(),
		state:   StateIdle,
		quality: QualityDisconnected,
	}

	c.options.Apply(opts)
	if c.options.Clock == nil {
		c.options.Clock = wallclock.Instance
	}
	if c.options.ClientFactory == nil {
		c.options.ClientFactory = NewClient
	}
	if c.options.Thresholds == (Thresholds{}) {
		c.options.Thresholds = DefaultThresholds
	}
	if c.options.LivenessWindow <= 0 {
		c.options.LivenessWindow = DefaultLivenessWindow
	}
	if c.options.QualityInterval <= 0 {
		c.options.QualityInterval = DefaultQualityInterval
	}

	c.log = log.Wrap(c.options.Logger)
	c.liveness = NewDebouncer(
		c.options.LivenessWindow,
		c.options.Clock,
		c.onLivenessExpired,
	)
	return c
}

// Connect validates the configuration and starts a broker session in the
// background. Configuration errors are returned and recorded as the last
// error without creating a transport. Connection progress is reported
// through the snapshot.
func (c *Controller) Connect(cfg Config) error {
	ctx := context.Background()

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}

	c.lastError = ""
	cfg, err := cfg.resolve()
	if err != nil {
		c.log.Err(ctx, err)
		c.lastError = err.Error()
		c.unlockAndNotify()
		return err
	}

	client, err := c.options.ClientFactory(cfg, c.options.Logger)
	if err == nil {
		err = c.attach(cfg, client)
	}
	if err != nil {
		c.log.Err(ctx, err)
		c.state = StateIdle
		c.quality = QualityDisconnected
		c.lastError = "Failed to connect: " + err.Error()
		c.feedback = feedbackConnectFailed
		c.unlockAndNotify()
		return err
	}

	c.log.Info(ctx, "connecting to MQTT broker",
		slog.String("broker_url", cfg.BrokerURL),
		slog.Any("topics", cfg.Topics),
		slog.String("client_id", client.ID()),
		slog.Int("protocol_version", int(cfg.Options.ProtocolVersion)),
	)
	c.unlockAndNotify()
	return nil
}

// Disconnect ends the session. The transport is stopped and both timers are
// cancelled before it returns. Calling it without a session is a no-op.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.session == nil && c.state == StateIdle {
		c.mu.Unlock()
		return
	}

	s := c.detach()
	c.state = StateIdle
	if s != nil {
		c.feedback = feedbackDisconnected
	}
	c.unlockAndNotify()

	if s != nil {
		c.teardown(s)
	}
}

// Close disconnects; it is intended to be deferred by the owner.
func (c *Controller) Close() error {
	c.Disconnect()
	return nil
}

// Publish sends a message while connected and does nothing otherwise.
func (c *Controller) Publish(ctx context.Context, topic, message string) error {
	c.mu.Lock()
	s := c.session
	if s == nil || !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if _, err := s.client.Publish(ctx, topic, []byte(message)); err != nil {
		c.log.Err(ctx, err, slog.String("topic", topic))
		return err
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// RegisterStateHandler registers a handler called with a fresh snapshot after
// every state change. Handlers run synchronously on the goroutine that made
// the change and must not block. The returned function removes the handler.
func (c *Controller) RegisterStateHandler(handler func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlerID++
	id := c.handlerID
	c.handlers = append(c.handlers, stateHandler{id, handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, h := range c.handlers {
				if h.id == id {
					c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Must hold c.mu.
func (c *Controller) attach(cfg Config, client mqtt.Client) error {
	c.gen++
	gen := c.gen

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		client: client,
		topics: cfg.Topics,
		ctx:    ctx,
		cancel: cancel,
	}
	s.release = []func(){
		client.RegisterConnectEventHandler(func(*mqtt.ConnectEvent) {
			c.onConnect(gen)
		}),
		client.RegisterDisconnectEventHandler(func(e *mqtt.DisconnectEvent) {
			c.onDisconnect(gen, e)
		}),
		client.RegisterFatalErrorHandler(func(err error) {
			c.onFatal(gen, err)
		}),
		client.RegisterMessageHandler(func(_ context.Context, m *mqtt.Message) {
			c.onMessage(gen, m)
		}),
	}

	if err := client.Start(); err != nil {
		s.cancel()
		for _, release := range s.release {
			release()
		}
		return err
	}

	c.session = s
	c.state = StateConnecting
	c.feedback = feedbackConnecting
	return nil
}

// Clears the session and the signals derived from it. Must hold c.mu.
func (c *Controller) detach() *session {
	c.gen++
	c.stopTick()
	c.liveness.Stop()
	c.connected = false
	c.quality = QualityDisconnected

	s := c.session
	c.session = nil
	return s
}

// Releases a detached session. Must not hold c.mu.
func (c *Controller) teardown(s *session) {
	s.cancel()
	for _, release := range s.release {
		release()
	}
	if err := s.client.Stop(); err != nil {
		c.log.Err(s.ctx, err)
	}
	s.subs.Wait()
}

func (c *Controller) onConnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	s := c.session
	s.connected = true
	c.state = StateConnected
	c.connected = true
	c.quality = QualityGood
	c.lastError = ""
	c.feedback = feedbackConnected
	c.startTick()

	c.log.Info(s.ctx, "connected to MQTT broker",
		slog.String("client_id", s.client.ID()),
	)

	// Subscriptions block on the broker, so they run unlocked.
	s.subs.Add(1)
	go c.subscribe(gen, s)

	c.unlockAndNotify()
}

func (c *Controller) subscribe(gen uint64, s *session) {
	defer s.subs.Done()

	for _, topic := range s.topics {
		_, err := s.client.Subscribe(s.ctx, topic)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			c.onSubscribeError(gen, &SubscribeError{Topic: topic, wrapped: err})
			continue
		}
		c.log.Debug(s.ctx, "subscribed", slog.String("topic", topic))
	}
}

func (c *Controller) onSubscribeError(gen uint64, err *SubscribeError) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	c.log.Err(c.session.ctx, err)
	c.lastError = "Failed to subscribe to " + err.Topic
	c.unlockAndNotify()
}

func (c *Controller) onMessage(gen uint64, m *mqtt.Message) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	ctx := c.session.ctx
	now := c.options.Clock.Now()

	p, err := DecodePayload(m.Topic, m.Payload)
	if err != nil {
		c.log.Err(ctx, err)
		c.lastError = errParseFailed
		c.unlockAndNotify()
		return
	}

	if !c.session.subscribed(m.Topic) {
		c.log.Warn(ctx, "message on a topic outside the subscriptions",
			slog.String("topic", m.Topic),
		)
	}

	r := Normalize(p, m.Topic, now)
	c.history.Append(r)
	c.latest = &r
	c.lastUpdate = now
	c.liveness.Trigger()

	c.log.Debug(ctx, "reading accepted",
		slog.String("topic", m.Topic),
		slog.String("device_id", r.DeviceID),
	)
	c.unlockAndNotify()
}

func (c *Controller) onDisconnect(gen uint64, e *mqtt.DisconnectEvent) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	ctx := c.session.ctx
	c.state = StateReconnecting
	c.connected = false
	c.quality = QualityDisconnected
	c.stopTick()

	switch {
	case e.Error != nil:
		c.log.Warn(ctx, "MQTT connection error",
			slog.String("error", e.Error.Error()),
		)
		c.lastError = "Connection error: " + e.Error.Error()
		c.feedback = feedbackReconnecting

	case e.ReasonCode != nil:
		c.log.Warn(ctx, "disconnected by MQTT broker",
			slog.Int("reason_code", int(*e.ReasonCode)),
		)
		if *e.ReasonCode >= 0x80 {
			c.lastError = fmt.Sprintf(
				"Connection error: broker closed the connection "+
					"(reason code 0x%02X)",
				*e.ReasonCode,
			)
		}
		c.feedback = feedbackDisconnected

	default:
		c.log.Warn(ctx, "MQTT client is offline")
		c.feedback = feedbackOffline
	}

	c.unlockAndNotify()
}

// The transport has given up; the session ends and is released here.
func (c *Controller) onFatal(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	c.log.Err(c.session.ctx, err, slog.Bool("fatal", true))
	s := c.detach()
	c.state = StateClosed
	c.lastError = "Connection error: " + err.Error()
	if s.connected {
		c.feedback = feedbackEnded
	} else {
		c.feedback = feedbackConnectFailed
	}
	c.unlockAndNotify()

	c.teardown(s)
}

func (c *Controller) onLivenessExpired() {
	c.mu.Lock()
	c.unlockAndNotify()
}

// Must hold c.mu.
func (c *Controller) startTick() {
	if c.tick != nil {
		return
	}
	t := &ticker{}
	t.timer = c.options.Clock.AfterFunc(
		c.options.QualityInterval,
		func() { c.onTick(t) },
	)
	c.tick = t
}

// Must hold c.mu.
func (c *Controller) stopTick() {
	if c.tick != nil {
		c.tick.timer.Stop()
		c.tick = nil
	}
}

// Reclassifies from the live state, never from values captured when the tick
// was armed.
func (c *Controller) onTick(t *ticker) {
	c.mu.Lock()
	if c.tick != t {
		c.mu.Unlock()
		return
	}

	t.timer.Reset(c.options.QualityInterval)
	quality := c.options.Thresholds.Classify(
		c.connected,
		c.lastUpdate,
		c.options.Clock.Now(),
	)
	if quality == c.quality {
		c.mu.Unlock()
		return
	}

	c.quality = quality
	c.unlockAndNotify()
}

// Must hold c.mu.
func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		State:            c.state,
		ConnectionStatus: c.connected,
		Quality:          c.quality,
		LastUpdateTime:   c.lastUpdate,
		IsReceivingData:  c.liveness.Active(),
		History:          c.history.All(),
		LastError:        c.lastError,
		Feedback:         c.feedback,
		Revision:         c.revision,
	}
	if c.latest != nil {
		latest := *c.latest
		s.Latest = &latest
	}
	if c.session != nil {
		s.ClientID = c.session.client.ID()
	}
	return s
}

// Records a state change, releases c.mu and delivers the new snapshot.
func (c *Controller) unlockAndNotify() {
	c.revision++
	snap := c.snapshot()
	handlers := make([]func(Snapshot), len(c.handlers))
	for i, h := range c.handlers {
		handlers[i] = h.fn
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(snap)
	}
}

// Persistent sessions can still deliver messages for filters a previous
// session subscribed to.
func (s *session) subscribed(topic string) bool {
	for _, filter := range s.topics {
		if mqtt.IsTopicFilterMatch(filter, topic) {
			return true
		}
	}
	return false
}
