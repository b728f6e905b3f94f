// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/wallclock"
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	BrokerURL: "ws://broker.local:8080/mqtt",
	Topics:    []string{"cleanenv/a", "cleanenv/b"},
}

func newTestController(
	t *testing.T,
	opts ...ControllerOption,
) (*Controller, *fakeFactory, *wallclock.Fake) {
	clock := wallclock.NewFake(epoch)
	factory := &fakeFactory{}

	c := NewController(
		append(
			[]ControllerOption{
				WithClock(clock),
				WithClientFactory(factory.build),
			},
			opts...,
		)...,
	)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c, factory, clock
}

// Connects and raises the transport's connected event.
func connected(t *testing.T, c *Controller, f *fakeFactory) *fakeClient {
	require.NoError(t, c.Connect(testConfig))
	client := f.last()
	client.connect()
	return client
}

func TestConnectRejectsBadScheme(t *testing.T) {
	c, factory, _ := newTestController(t)

	err := c.Connect(Config{BrokerURL: "http://x", Topics: []string{"a"}})

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, 0, factory.calls())

	snap := c.Snapshot()
	require.Equal(t, StateIdle, snap.State)
	require.Equal(t, errBadScheme, snap.LastError)
	require.False(t, snap.ConnectionStatus)
	require.Equal(t, QualityDisconnected, snap.Quality)
}

func TestConnectRequiresTopics(t *testing.T) {
	c, factory, _ := newTestController(t)

	err := c.Connect(Config{BrokerURL: "ws://x", Topics: ParseTopics(" , ")})
	require.Error(t, err)
	require.Equal(t, errMissingFields, c.Snapshot().LastError)
	require.Equal(t, 0, factory.calls())
}

func TestSessionLifecycle(t *testing.T) {
	c, factory, clock := newTestController(t)

	require.NoError(t, c.Connect(testConfig))
	client := factory.last()

	snap := c.Snapshot()
	require.Equal(t, StateConnecting, snap.State)
	require.Equal(t, feedbackConnecting, snap.Feedback)
	require.Equal(t, "fake-client", snap.ClientID)
	require.False(t, snap.ConnectionStatus)

	client.connect()

	snap = c.Snapshot()
	require.Equal(t, StateConnected, snap.State)
	require.True(t, snap.ConnectionStatus)
	require.Equal(t, QualityGood, snap.Quality)
	require.Equal(t, feedbackConnected, snap.Feedback)
	require.Empty(t, snap.LastError)
	require.True(t, snap.LastUpdateTime.IsZero())

	require.Eventually(t, func() bool {
		return slices.Equal(testConfig.Topics, client.subscriptions())
	}, time.Second, time.Millisecond)

	client.message("cleanenv/a", `{"b_v":12.6,"deviceId":"TEG-001"}`)

	snap = c.Snapshot()
	require.Len(t, snap.History, 1)
	require.NotNil(t, snap.Latest)
	require.Equal(t, "TEG-001", snap.Latest.DeviceID)
	require.Equal(t, snap.History[0], *snap.Latest)
	require.Equal(t, epoch.UnixMilli(), snap.Latest.Timestamp)
	require.Equal(t, epoch, snap.LastUpdateTime)
	require.True(t, snap.IsReceivingData)

	clock.Advance(time.Second)
	require.False(t, c.Snapshot().IsReceivingData)
}

func TestSnapshotIsACopy(t *testing.T) {
	c, factory, _ := newTestController(t)
	client := connected(t, c, factory)
	client.message("cleanenv/a", `{"temp":30}`)

	snap := c.Snapshot()
	snap.History[0].Temperature = 99
	snap.Latest.Temperature = 99

	again := c.Snapshot()
	require.Equal(t, 30.0, again.History[0].Temperature)
	require.Equal(t, 30.0, again.Latest.Temperature)
}

func TestQualityTick(t *testing.T) {
	c, factory, clock := newTestController(t)
	client := connected(t, c, factory)
	client.message("cleanenv/a", `{}`)

	for _, step := range []struct {
		advance time.Duration
		quality Quality
	}{
		{2 * time.Second, QualityExcellent},  // t=2s
		{2 * time.Second, QualityExcellent},  // t=4s
		{2 * time.Second, QualityGood},       // t=6s
		{8 * time.Second, QualityGood},       // t=14s
		{2 * time.Second, QualityPoor},       // t=16s
		{10 * time.Second, QualityPoor},      // t=26s
		{time.Second, QualityPoor},           // t=27s, no tick
		{time.Second, QualityPoor},           // t=28s
	} {
		clock.Advance(step.advance)
		require.Equal(t, step.quality, c.Snapshot().Quality, clock.Now())
	}

	// A new reading is picked up by the next tick, not a stale copy.
	client.message("cleanenv/a", `{}`)
	require.Equal(t, QualityPoor, c.Snapshot().Quality)
	clock.Advance(2 * time.Second)
	require.Equal(t, QualityExcellent, c.Snapshot().Quality)
}

func TestQualityTickOptions(t *testing.T) {
	c, factory, clock := newTestController(t,
		WithQualityInterval(time.Second),
		WithThresholds{Excellent: time.Second, Good: 3 * time.Second},
	)
	client := connected(t, c, factory)
	client.message("cleanenv/a", `{}`)

	clock.Advance(time.Second)
	require.Equal(t, QualityGood, c.Snapshot().Quality)
	clock.Advance(2 * time.Second)
	require.Equal(t, QualityPoor, c.Snapshot().Quality)
}

func TestQualityBeforeFirstReading(t *testing.T) {
	c, factory, clock := newTestController(t)
	connected(t, c, factory)

	clock.Advance(time.Minute)
	require.Equal(t, QualityGood, c.Snapshot().Quality)
}

func TestTransportErrorSuspendsTick(t *testing.T) {
	c, factory, clock := newTestController(t)
	client := connected(t, c, factory)
	require.Equal(t, 1, clock.Pending())

	client.disconnect(&mqtt.DisconnectEvent{Error: errors.New("network down")})

	snap := c.Snapshot()
	require.Equal(t, StateReconnecting, snap.State)
	require.False(t, snap.ConnectionStatus)
	require.Equal(t, QualityDisconnected, snap.Quality)
	require.Equal(t, "Connection error: network down", snap.LastError)
	require.Equal(t, feedbackReconnecting, snap.Feedback)
	require.Equal(t, 0, clock.Pending())

	clock.Advance(time.Minute)
	require.Equal(t, QualityDisconnected, c.Snapshot().Quality)

	client.connect()
	snap = c.Snapshot()
	require.Equal(t, StateConnected, snap.State)
	require.Equal(t, QualityGood, snap.Quality)
	require.Empty(t, snap.LastError)
	require.Equal(t, 1, clock.Pending())
}

func TestServerDisconnect(t *testing.T) {
	c, factory, _ := newTestController(t)
	client := connected(t, c, factory)

	code := byte(0x8E)
	client.disconnect(&mqtt.DisconnectEvent{ReasonCode: &code})

	snap := c.Snapshot()
	require.Equal(t, feedbackDisconnected, snap.Feedback)
	require.Equal(t,
		"Connection error: broker closed the connection (reason code 0x8E)",
		snap.LastError,
	)
	require.Equal(t, QualityDisconnected, snap.Quality)
}

func TestDecodeErrorKeepsSession(t *testing.T) {
	c, factory, _ := newTestController(t)
	client := connected(t, c, factory)

	client.message("cleanenv/a", "not json")

	snap := c.Snapshot()
	require.Equal(t, errParseFailed, snap.LastError)
	require.Equal(t, StateConnected, snap.State)
	require.True(t, snap.ConnectionStatus)
	require.Empty(t, snap.History)
	require.Nil(t, snap.Latest)
	require.False(t, snap.IsReceivingData)
}

func TestSubscribeFailureIsPerTopic(t *testing.T) {
	c, factory, _ := newTestController(t)
	factory.next = func() *fakeClient {
		return &fakeClient{subscribeErr: map[string]error{
			"cleanenv/b": errors.New("not authorized"),
		}}
	}

	cfg := testConfig
	cfg.Topics = []string{"cleanenv/a", "cleanenv/b", "cleanenv/c"}
	require.NoError(t, c.Connect(cfg))
	client := factory.last()
	client.connect()

	require.Eventually(t, func() bool {
		return c.Snapshot().LastError == "Failed to subscribe to cleanenv/b" &&
			slices.Equal(
				[]string{"cleanenv/a", "cleanenv/c"},
				client.subscriptions(),
			)
	}, time.Second, time.Millisecond)
	require.Equal(t, StateConnected, c.Snapshot().State)
}

func TestLivenessWindow(t *testing.T) {
	c, factory, clock := newTestController(t)
	client := connected(t, c, factory)

	client.message("cleanenv/a", `{}`)
	clock.Advance(500 * time.Millisecond)
	client.message("cleanenv/a", `{}`)

	clock.Advance(999 * time.Millisecond)
	require.True(t, c.Snapshot().IsReceivingData)
	clock.Advance(time.Millisecond)
	require.False(t, c.Snapshot().IsReceivingData)
}

func TestDisconnectTwice(t *testing.T) {
	c, factory, clock := newTestController(t)
	client := connected(t, c, factory)
	client.message("cleanenv/a", `{}`)

	for range 2 {
		c.Disconnect()

		snap := c.Snapshot()
		require.Equal(t, StateIdle, snap.State)
		require.False(t, snap.ConnectionStatus)
		require.Equal(t, QualityDisconnected, snap.Quality)
		require.False(t, snap.IsReceivingData)
		require.Equal(t, feedbackDisconnected, snap.Feedback)
		require.Len(t, snap.History, 1)

		require.Equal(t, 1, client.stopCount())
		require.Equal(t, 0, client.handlerCount())
		require.Equal(t, 0, clock.Pending())
	}
}

func TestDisconnectWithoutSession(t *testing.T) {
	c, _, _ := newTestController(t)
	c.Disconnect()
	c.Disconnect()

	snap := c.Snapshot()
	require.Equal(t, StateIdle, snap.State)
	require.False(t, snap.ConnectionStatus)
	require.Equal(t, QualityDisconnected, snap.Quality)
	require.Zero(t, snap.Revision)
}

func TestStaleEventsAreDiscarded(t *testing.T) {
	c, factory, _ := newTestController(t)
	client := connected(t, c, factory)

	onMessage := snapshotOf(&client.mu, &client.messageHandlers)
	onConnect := snapshotOf(&client.mu, &client.connectHandlers)
	c.Disconnect()

	onMessage[0](context.Background(), &mqtt.Message{
		Topic:   "cleanenv/a",
		Payload: []byte(`{"b_v":1}`),
	})
	onConnect[0](&mqtt.ConnectEvent{})

	snap := c.Snapshot()
	require.Empty(t, snap.History)
	require.Equal(t, StateIdle, snap.State)
	require.False(t, snap.ConnectionStatus)
}

func TestFatalError(t *testing.T) {
	c, factory, _ := newTestController(t)
	require.NoError(t, c.Connect(testConfig))
	client := factory.last()

	client.fatal(errors.New("bad user name or password"))

	snap := c.Snapshot()
	require.Equal(t, StateClosed, snap.State)
	require.Equal(t, feedbackConnectFailed, snap.Feedback)
	require.Equal(t, "Connection error: bad user name or password", snap.LastError)
	require.Empty(t, snap.ClientID)
	require.Equal(t, 1, client.stopCount())

	// A closed session can be replaced.
	client = connected(t, c, factory)
	require.Equal(t, 2, factory.calls())
	require.Equal(t, StateConnected, c.Snapshot().State)

	client.fatal(errors.New("session taken over"))
	require.Equal(t, feedbackEnded, c.Snapshot().Feedback)

	c.Disconnect()
	require.Equal(t, StateIdle, c.Snapshot().State)
	require.Equal(t, 1, client.stopCount())
}

func TestConnectWhileActive(t *testing.T) {
	c, factory, _ := newTestController(t)
	require.NoError(t, c.Connect(testConfig))

	require.ErrorIs(t, c.Connect(testConfig), ErrSessionActive)
	require.Equal(t, 1, factory.calls())
}

func TestStartFailure(t *testing.T) {
	c, factory, _ := newTestController(t)
	factory.next = func() *fakeClient {
		return &fakeClient{startErr: errors.New("boom")}
	}

	require.Error(t, c.Connect(testConfig))

	snap := c.Snapshot()
	require.Equal(t, StateIdle, snap.State)
	require.Equal(t, "Failed to connect: boom", snap.LastError)
	require.Equal(t, feedbackConnectFailed, snap.Feedback)
	require.Equal(t, 0, factory.last().handlerCount())

	factory.next = nil
	require.NoError(t, c.Connect(testConfig))
}

func TestPublish(t *testing.T) {
	c, factory, _ := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.Publish(ctx, "cleanenv/cmd", "fan_on"))

	require.NoError(t, c.Connect(testConfig))
	client := factory.last()
	require.NoError(t, c.Publish(ctx, "cleanenv/cmd", "fan_on"))
	require.Empty(t, client.publications())

	client.connect()
	require.NoError(t, c.Publish(ctx, "cleanenv/cmd", "fan_off"))
	require.Equal(t,
		[]fakePublish{{"cleanenv/cmd", "fan_off"}},
		client.publications(),
	)

	c.Disconnect()
	require.NoError(t, c.Publish(ctx, "cleanenv/cmd", "fan_on"))
	require.Len(t, client.publications(), 1)
}

func TestStateHandlers(t *testing.T) {
	c, factory, clock := newTestController(t)

	var mu sync.Mutex
	var snaps []Snapshot
	remove := c.RegisterStateHandler(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, s)
	})
	received := func() []Snapshot {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(snaps)
	}

	client := connected(t, c, factory)
	client.message("cleanenv/a", `{}`)
	clock.Advance(time.Second)

	got := received()
	require.Len(t, got, 4)
	require.Equal(t, StateConnecting, got[0].State)
	require.Equal(t, StateConnected, got[1].State)
	require.Len(t, got[2].History, 1)
	require.True(t, got[2].IsReceivingData)
	require.False(t, got[3].IsReceivingData)
	for i := 1; i < len(got); i++ {
		require.Greater(t, got[i].Revision, got[i-1].Revision)
	}
	require.Equal(t, got[3], c.Snapshot())

	remove()
	remove()
	c.Disconnect()
	require.Len(t, received(), 4)
}

func TestStateTextRoundTrip(t *testing.T) {
	for state := range stateNames {
		data, err := json.Marshal(state)
		require.NoError(t, err)

		var decoded State
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Equal(t, state, decoded)
	}

	var snap struct{ State State }
	require.NoError(t, json.Unmarshal([]byte(`{"State":"reconnecting"}`), &snap))
	require.Equal(t, StateReconnecting, snap.State)

	var state State
	require.ErrorContains(t, state.UnmarshalText([]byte("Connected")), "unknown")
	require.ErrorContains(t, state.UnmarshalText([]byte("State(9)")), "unknown")
}

func TestOfflineFeedback(t *testing.T) {
	c, factory, clock := newTestController(t)
	client := connected(t, c, factory)

	client.disconnect(&mqtt.DisconnectEvent{})

	snap := c.Snapshot()
	require.Equal(t, StateReconnecting, snap.State)
	require.False(t, snap.ConnectionStatus)
	require.Equal(t, QualityDisconnected, snap.Quality)
	require.Equal(t, feedbackOffline, snap.Feedback)
	require.Empty(t, snap.LastError)
	require.Equal(t, 0, clock.Pending())
}

func TestMessageOutsideSubscriptions(t *testing.T) {
	var buf lockedBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	c, factory, _ := newTestController(t, WithLogger(logger))
	client := connected(t, c, factory)

	client.message("cleanenv/a", `{"deviceId":"dev-a"}`)
	require.NotContains(t, buf.String(), "outside the subscriptions")

	client.message("legacy/device", `{"deviceId":"dev-x"}`)
	require.Contains(t, buf.String(), "outside the subscriptions")
	require.Contains(t, buf.String(), "topic=legacy/device")

	// The reading is still kept.
	snap := c.Snapshot()
	require.Len(t, snap.History, 2)
	require.Equal(t, "dev-x", snap.Latest.DeviceID)
}

// Subscription goroutines log concurrently with the test reading the output.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

