// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package mqtt3 implements the shared MQTT client contract over MQTT 3.1.1,
// for brokers and devices that do not speak MQTT v5.
package mqtt3

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/log"
	"github.com/dev-BJ/CleanEnv-Dashboard/internal/mqtt"
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt/internal"
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt/retry"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	clientIDPrefix         = "CleanEnv-"
	defaultConnectTimeout  = 4 * time.Second
	defaultReconnectPeriod = time.Second
	defaultKeepAlive       = 60 * time.Second
	disconnectQuiesce      = 250 // milliseconds
)

// Client implements the shared MQTT client contract over MQTT 3.1.1 using the
// Eclipse Paho client. Brokers are addressed by URL; ws:// and wss:// are
// supported natively.
type Client struct {
	started atomic.Bool
	stopped atomic.Bool

	shutdown *internal.Background
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	client  paho.Client
	options ClientOptions

	messageHandlers         *internal.HandlerList[mqtt.MessageHandler]
	connectEventHandlers    *internal.HandlerList[mqtt.ConnectEventHandler]
	disconnectEventHandlers *internal.HandlerList[mqtt.DisconnectEventHandler]
	fatalErrorHandlers      *internal.HandlerList[func(error)]

	log log.Logger
}

var _ mqtt.Client = (*Client)(nil)

// New constructs a client for the broker at serverURL.
func New(serverURL string, opts ...ClientOption) *Client {
	c := &Client{
		shutdown: internal.NewBackground(ErrShutDown),
		done:     make(chan struct{}),

		messageHandlers:         internal.NewHandlerList[mqtt.MessageHandler](),
		connectEventHandlers:    internal.NewHandlerList[mqtt.ConnectEventHandler](),
		disconnectEventHandlers: internal.NewHandlerList[mqtt.DisconnectEventHandler](),
		fatalErrorHandlers:      internal.NewHandlerList[func(error)](),
	}

	c.options.Apply(opts)

	if c.options.ClientID == "" {
		c.options.ClientID = internal.RandomClientID(clientIDPrefix)
	}
	if c.options.ConnectTimeout == 0 {
		c.options.ConnectTimeout = defaultConnectTimeout
	}
	if c.options.ReconnectPeriod == 0 {
		c.options.ReconnectPeriod = defaultReconnectPeriod
	}
	if c.options.KeepAlive == 0 {
		c.options.KeepAlive = defaultKeepAlive
	}

	c.log = log.Wrap(c.options.Logger)

	po := paho.NewClientOptions().
		AddBroker(serverURL).
		SetClientID(c.options.ClientID).
		SetProtocolVersion(4).
		SetCleanSession(c.options.CleanSession).
		SetKeepAlive(c.options.KeepAlive).
		SetConnectTimeout(c.options.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetMaxReconnectInterval(c.options.ReconnectPeriod).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(c.onReconnecting).
		SetDefaultPublishHandler(c.onPublish)

	if c.options.Username != "" {
		po.SetUsername(c.options.Username)
	}
	if c.options.Password != "" {
		po.SetPassword(c.options.Password)
	}
	if c.options.TLSConfig != nil {
		po.SetTLSConfig(c.options.TLSConfig)
	}

	c.client = paho.NewClient(po)
	return c
}

// ID returns the MQTT client ID.
func (c *Client) ID() string {
	return c.options.ClientID
}

// Start begins connecting in the background. Failed attempts are reported as
// disconnect events and retried every ReconnectPeriod; once connected, Paho's
// auto-reconnect takes over.
func (c *Client) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	// c.ctx lives until Stop; the connect loop gets its own context.
	c.ctx, c.cancel = c.shutdown.With(context.Background())
	ctx, cancel := context.WithCancel(c.ctx)

	go func() {
		defer close(c.done)
		defer cancel()
		c.connect(ctx)
	}()
	return nil
}

// Stop disconnects from the broker and waits for the background goroutine to
// exit.
func (c *Client) Stop() error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	if !c.stopped.CompareAndSwap(false, true) {
		return ErrShutDown
	}

	c.shutdown.Close()
	<-c.done
	c.client.Disconnect(disconnectQuiesce)
	c.cancel()
	return nil
}

func (c *Client) connect(ctx context.Context) {
	policy := retry.Constant(c.options.ReconnectPeriod, c.options.Logger)

	err := policy.Start(ctx, "connect", func(ctx context.Context) (bool, error) {
		token := c.client.Connect()
		select {
		case <-token.Done():
		case <-ctx.Done():
			return false, ctx.Err()
		}

		err := token.Error()
		if err == nil {
			return false, nil
		}

		connErr := &ConnectError{Fatal: isFatalConnectError(err), wrapped: err}
		c.log.Err(ctx, connErr)
		for handler := range c.disconnectEventHandlers.All() {
			handler(&mqtt.DisconnectEvent{Error: connErr})
		}
		return !connErr.Fatal, connErr
	})

	if err != nil && ctx.Err() == nil {
		c.log.Err(ctx, err, slog.Bool("fatal", true))
		for handler := range c.fatalErrorHandlers.All() {
			go handler(err)
		}
	}
}

func (c *Client) onConnect(paho.Client) {
	if c.shutdown.Closed() {
		return
	}
	c.log.Info(c.ctx, "connected", slog.String("client_id", c.ID()))
	for handler := range c.connectEventHandlers.All() {
		handler(&mqtt.ConnectEvent{})
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	if c.shutdown.Closed() {
		return
	}
	c.log.Warn(c.ctx, "connection lost", slog.String("error", err.Error()))
	for handler := range c.disconnectEventHandlers.All() {
		handler(&mqtt.DisconnectEvent{Error: err})
	}
}

func (c *Client) onReconnecting(paho.Client, *paho.ClientOptions) {
	c.log.Debug(c.ctx, "reconnecting")
}

func (c *Client) onPublish(_ paho.Client, m paho.Message) {
	msg := &mqtt.Message{
		Topic:   m.Topic(),
		Payload: m.Payload(),
		PublishOptions: mqtt.PublishOptions{
			QoS:    m.Qos(),
			Retain: m.Retained(),
		},
	}
	for handler := range c.messageHandlers.All() {
		handler(c.ctx, msg)
	}
}

// RegisterMessageHandler registers a handler for every incoming message.
func (c *Client) RegisterMessageHandler(handler mqtt.MessageHandler) func() {
	return c.messageHandlers.Register(handler)
}

// RegisterConnectEventHandler registers a connection handler.
func (c *Client) RegisterConnectEventHandler(
	handler mqtt.ConnectEventHandler,
) func() {
	return c.connectEventHandlers.Register(handler)
}

// RegisterDisconnectEventHandler registers a disconnection handler.
func (c *Client) RegisterDisconnectEventHandler(
	handler mqtt.DisconnectEventHandler,
) func() {
	return c.disconnectEventHandlers.Register(handler)
}

// RegisterFatalErrorHandler registers a handler called in a goroutine if the
// client gives up connecting.
func (c *Client) RegisterFatalErrorHandler(handler func(error)) func() {
	return c.fatalErrorHandlers.Register(handler)
}

// Subscribe subscribes to a single topic filter. User properties and
// v5-only flags are ignored.
func (c *Client) Subscribe(
	ctx context.Context,
	topic string,
	opts ...mqtt.SubscribeOption,
) (*mqtt.Ack, error) {
	if !c.started.Load() {
		return nil, ErrNotStarted
	}

	var opt mqtt.SubscribeOptions
	opt.Apply(opts)

	token := c.client.Subscribe(topic, opt.QoS, nil)
	if err := c.wait(ctx, token); err != nil {
		return nil, err
	}

	granted, ok := token.(*paho.SubscribeToken).Result()[topic]
	if !ok || granted >= 0x80 {
		return nil, &SubscribeError{Topic: topic}
	}
	return &mqtt.Ack{ReasonCode: granted}, nil
}

// Publish sends a message. User properties and v5-only options are ignored.
func (c *Client) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opts ...mqtt.PublishOption,
) (*mqtt.Ack, error) {
	if !c.started.Load() {
		return nil, ErrNotStarted
	}

	var opt mqtt.PublishOptions
	opt.Apply(opts)

	token := c.client.Publish(topic, opt.QoS, opt.Retain, payload)
	if err := c.wait(ctx, token); err != nil {
		return nil, err
	}
	return &mqtt.Ack{}, nil
}

func (c *Client) wait(ctx context.Context, token paho.Token) error {
	ctx, cancel := c.shutdown.With(ctx)
	defer cancel()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
