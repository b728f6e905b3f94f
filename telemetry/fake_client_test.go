// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt"
)

type (
	// An in-memory mqtt.Client whose events are raised by the test.
	fakeClient struct {
		mu sync.Mutex

		startErr     error
		subscribeErr map[string]error
		started      bool
		stops        int

		subscribed []string
		published  []fakePublish

		messageHandlers    []*mqtt.MessageHandler
		connectHandlers    []*mqtt.ConnectEventHandler
		disconnectHandlers []*mqtt.DisconnectEventHandler
		fatalHandlers      []*func(error)
	}

	fakePublish struct {
		topic   string
		payload string
	}

	// Hands out fake clients and records what it was asked to build.
	fakeFactory struct {
		mu      sync.Mutex
		configs []Config
		clients []*fakeClient
		next    func() *fakeClient
	}
)

var errFakeStopped = errors.New("fake client stopped")

func (f *fakeFactory) build(cfg Config, _ *slog.Logger) (mqtt.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	client := &fakeClient{}
	if f.next != nil {
		client = f.next()
	}
	f.configs = append(f.configs, cfg)
	f.clients = append(f.clients, client)
	return client, nil
}

func (f *fakeFactory) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[len(f.clients)-1]
}

func register[T any](mu *sync.Mutex, list *[]*T, handler T) func() {
	mu.Lock()
	defer mu.Unlock()

	h := &handler
	*list = append(*list, h)
	return func() {
		mu.Lock()
		defer mu.Unlock()
		*list = slices.DeleteFunc(*list, func(e *T) bool { return e == h })
	}
}

func snapshotOf[T any](mu *sync.Mutex, list *[]*T) []T {
	mu.Lock()
	defer mu.Unlock()

	out := make([]T, len(*list))
	for i, h := range *list {
		out[i] = *h
	}
	return out
}

func (c *fakeClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.started = true
	return nil
}

func (c *fakeClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *fakeClient) Subscribe(
	_ context.Context,
	topic string,
	_ ...mqtt.SubscribeOption,
) (*mqtt.Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.subscribeErr[topic]; err != nil {
		return nil, err
	}
	c.subscribed = append(c.subscribed, topic)
	return &mqtt.Ack{}, nil
}

func (c *fakeClient) Publish(
	_ context.Context,
	topic string,
	payload []byte,
	_ ...mqtt.PublishOption,
) (*mqtt.Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stops > 0 {
		return nil, errFakeStopped
	}
	c.published = append(c.published, fakePublish{topic, string(payload)})
	return nil, nil
}

func (c *fakeClient) RegisterMessageHandler(h mqtt.MessageHandler) func() {
	return register(&c.mu, &c.messageHandlers, h)
}

func (c *fakeClient) RegisterConnectEventHandler(
	h mqtt.ConnectEventHandler,
) func() {
	return register(&c.mu, &c.connectHandlers, h)
}

func (c *fakeClient) RegisterDisconnectEventHandler(
	h mqtt.DisconnectEventHandler,
) func() {
	return register(&c.mu, &c.disconnectHandlers, h)
}

func (c *fakeClient) RegisterFatalErrorHandler(h func(error)) func() {
	return register(&c.mu, &c.fatalHandlers, h)
}

func (c *fakeClient) ID() string {
	return "fake-client"
}

func (c *fakeClient) connect() {
	for _, h := range snapshotOf(&c.mu, &c.connectHandlers) {
		h(&mqtt.ConnectEvent{})
	}
}

func (c *fakeClient) disconnect(e *mqtt.DisconnectEvent) {
	for _, h := range snapshotOf(&c.mu, &c.disconnectHandlers) {
		h(e)
	}
}

func (c *fakeClient) fatal(err error) {
	for _, h := range snapshotOf(&c.mu, &c.fatalHandlers) {
		h(err)
	}
}

func (c *fakeClient) message(topic, payload string) {
	for _, h := range snapshotOf(&c.mu, &c.messageHandlers) {
		h(context.Background(), &mqtt.Message{
			Topic:   topic,
			Payload: []byte(payload),
		})
	}
}

func (c *fakeClient) handlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messageHandlers) + len(c.connectHandlers) +
		len(c.disconnectHandlers) + len(c.fatalHandlers)
}

func (c *fakeClient) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.subscribed)
}

func (c *fakeClient) publications() []fakePublish {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.published)
}

func (c *fakeClient) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}
