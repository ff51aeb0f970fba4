package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/AzielCF/az-chat/realtime/domain/session"
	"github.com/stretchr/testify/assert"
)

// fakeChannel is a scriptable chat.Channel capturing emits and exposing
// its registered handlers so tests can inject events and drops.
type fakeChannel struct {
	mu           sync.Mutex
	status       chat.ChannelStatus
	emitted      []chat.Event
	onEvent      func(chat.Event)
	onDisconnect func(error)
	connectErr   error
	failEmits    int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{status: chat.ChannelStatusPending}
}

func (c *fakeChannel) Connect(ctx context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	c.status = chat.ChannelStatusConnected
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.status = chat.ChannelStatusDisconnected
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Status() chat.ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeChannel) Emit(ctx context.Context, name chat.EventName, payload any) error {
	data, _ := json.Marshal(payload)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failEmits > 0 {
		c.failEmits--
		return errors.New("write failed")
	}
	c.emitted = append(c.emitted, chat.Event{Name: name, Data: data})
	return nil
}

func (c *fakeChannel) OnEvent(handler func(chat.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = handler
}

func (c *fakeChannel) OnDisconnect(handler func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = handler
}

func (c *fakeChannel) emittedNames() []chat.EventName {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.EventName, len(c.emitted))
	for i, ev := range c.emitted {
		out[i] = ev.Name
	}
	return out
}

func (c *fakeChannel) inject(name chat.EventName, payload any) {
	c.mu.Lock()
	handler := c.onEvent
	c.mu.Unlock()
	data, _ := json.Marshal(payload)
	if handler != nil {
		handler(chat.Event{Name: name, Data: data})
	}
}

func (c *fakeChannel) drop(err error) {
	c.mu.Lock()
	handler := c.onDisconnect
	c.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// channelFactory hands out fake channels in sequence and records them.
// nextErr applies to every subsequent dial; nextFailEmits is consumed
// by the next dialed channel only.
type channelFactory struct {
	mu            sync.Mutex
	channels      []*fakeChannel
	nextErr       error
	nextFailEmits int
}

func (f *channelFactory) make(cfg chat.ChannelConfig) (chat.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := newFakeChannel()
	ch.connectErr = f.nextErr
	ch.failEmits = f.nextFailEmits
	f.nextFailEmits = 0
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *channelFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

func (f *channelFactory) at(i int) *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[i]
}

var testIdentity = session.StaticProvider{Identity: session.Identity{UserID: "me", Token: "tok"}}

func fastPolicy() ReconnectPolicy {
	return ReconnectPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond}
}

// Test_Connection_HandshakeOnEveryConnect verifies the identify and
// online-presence announcement repeats per (re)connect.
func Test_Connection_HandshakeOnEveryConnect(t *testing.T) {
	factory := &channelFactory{}
	cm := NewConnectionManager(factory.make, testIdentity, "ws://test", fastPolicy())

	var handshakes []uint64
	var hsMu sync.Mutex
	cm.OnHandshake = func(gen uint64) {
		hsMu.Lock()
		handshakes = append(handshakes, gen)
		hsMu.Unlock()
	}

	assert.NoError(t, cm.Open(context.Background()))
	assert.Equal(t, 1, factory.count())
	assert.Equal(t, []chat.EventName{chat.EventIdentify, chat.EventPresence}, factory.at(0).emittedNames())

	// Transport drops; the manager reconnects and handshakes again
	factory.at(0).drop(errors.New("network reset"))
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 2, factory.count())
	assert.Equal(t, []chat.EventName{chat.EventIdentify, chat.EventPresence}, factory.at(1).emittedNames())

	hsMu.Lock()
	defer hsMu.Unlock()
	assert.Len(t, handshakes, 2)
	assert.Greater(t, handshakes[1], handshakes[0], "reconnect runs under a newer generation")
}

// Test_Connection_StaleGenerationEventsDropped verifies events from a
// superseded channel can no longer reach any handler.
func Test_Connection_StaleGenerationEventsDropped(t *testing.T) {
	factory := &channelFactory{}
	cm := NewConnectionManager(factory.make, testIdentity, "ws://test", fastPolicy())

	var received []chat.Message
	var recMu sync.Mutex
	cm.OnMessage = func(msg chat.Message) {
		recMu.Lock()
		received = append(received, msg)
		recMu.Unlock()
	}

	assert.NoError(t, cm.Open(context.Background()))
	stale := factory.at(0)

	// A second Open supersedes the first generation entirely
	assert.NoError(t, cm.Open(context.Background()))
	live := factory.at(1)

	stale.inject(chat.EventMessage, chat.Message{ID: "ghost", SenderID: "peer_1"})
	live.inject(chat.EventMessage, chat.Message{ID: "real", SenderID: "peer_1"})

	recMu.Lock()
	defer recMu.Unlock()
	assert.Len(t, received, 1)
	assert.Equal(t, "real", received[0].ID)
}

// Test_Connection_HandshakeFailureClosesChannel verifies a channel whose
// transport connects but whose handshake fails is fully abandoned: the
// transport is closed, and events it delivers afterwards cannot reach
// any handler even while the retry loop dials a replacement for the
// same generation.
func Test_Connection_HandshakeFailureClosesChannel(t *testing.T) {
	factory := &channelFactory{}
	cm := NewConnectionManager(factory.make, testIdentity, "ws://test", fastPolicy())

	var received int
	var recMu sync.Mutex
	cm.OnMessage = func(chat.Message) {
		recMu.Lock()
		received++
		recMu.Unlock()
	}
	handshakes := make(chan uint64, 4)
	cm.OnHandshake = func(gen uint64) { handshakes <- gen }

	assert.NoError(t, cm.Open(context.Background()))
	<-handshakes

	// The next dialed channel connects fine but rejects both
	// handshake writes
	factory.mu.Lock()
	factory.nextFailEmits = 2
	factory.mu.Unlock()

	factory.at(0).drop(errors.New("network reset"))

	select {
	case <-handshakes:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("reconnect never completed a handshake")
	}

	assert.Equal(t, 3, factory.count(), "failed handshake costs one extra dial")
	abandoned := factory.at(1)
	live := factory.at(2)

	assert.Equal(t, chat.ChannelStatusDisconnected, abandoned.Status(), "half-established transport must be closed")
	assert.Equal(t, chat.ChannelStatusConnected, cm.Status())

	abandoned.inject(chat.EventMessage, chat.Message{ID: "ghost", SenderID: "peer_1"})
	live.inject(chat.EventMessage, chat.Message{ID: "real", SenderID: "peer_1"})

	recMu.Lock()
	defer recMu.Unlock()
	assert.Equal(t, 1, received, "only the live channel feeds handlers")
}

// Test_Connection_CloseStopsReconnect verifies an explicit close wins
// over a concurrent drop; no new channel is dialed.
func Test_Connection_CloseStopsReconnect(t *testing.T) {
	factory := &channelFactory{}
	cm := NewConnectionManager(factory.make, testIdentity, "ws://test", fastPolicy())

	assert.NoError(t, cm.Open(context.Background()))
	ch := factory.at(0)

	cm.Close()
	ch.drop(errors.New("late drop"))
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, 1, factory.count())
	assert.Equal(t, chat.ChannelStatusDisconnected, cm.Status())
}

// Test_Connection_CloseAnnouncesOffline verifies the best-effort offline
// broadcast precedes the transport close.
func Test_Connection_CloseAnnouncesOffline(t *testing.T) {
	factory := &channelFactory{}
	cm := NewConnectionManager(factory.make, testIdentity, "ws://test", fastPolicy())

	assert.NoError(t, cm.Open(context.Background()))
	cm.Close()

	names := factory.at(0).emittedNames()
	assert.Equal(t, chat.EventPresence, names[len(names)-1])

	var last chat.PresenceEvent
	ch := factory.at(0)
	ch.mu.Lock()
	_ = json.Unmarshal(ch.emitted[len(ch.emitted)-1].Data, &last)
	ch.mu.Unlock()
	assert.False(t, last.Online)
	assert.Equal(t, "me", last.UserID, "offline broadcast names the departing user")
}

// Test_Connection_AuthErrorForcesClose verifies a server-side session
// invalidation closes the channel without any reconnect attempt.
func Test_Connection_AuthErrorForcesClose(t *testing.T) {
	factory := &channelFactory{}
	cm := NewConnectionManager(factory.make, testIdentity, "ws://test", fastPolicy())

	var reason string
	cm.OnAuthError = func(ev chat.AuthErrorEvent) { reason = ev.Reason }

	assert.NoError(t, cm.Open(context.Background()))
	factory.at(0).inject(chat.EventAuthError, chat.AuthErrorEvent{Reason: "token expired"})
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, "token expired", reason)
	assert.Equal(t, chat.ChannelStatusDisconnected, cm.Status())
	assert.Equal(t, 1, factory.count(), "auth errors never trigger reconnect")
}

// Test_Connection_ReconnectGivesUpAfterBudget verifies the bounded retry
// loop surfaces exhaustion instead of spinning forever.
func Test_Connection_ReconnectGivesUpAfterBudget(t *testing.T) {
	factory := &channelFactory{}
	cm := NewConnectionManager(factory.make, testIdentity, "ws://test",
		ReconnectPolicy{MaxAttempts: 2, BaseDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond})

	gaveUp := make(chan struct{})
	cm.OnGiveUp = func() { close(gaveUp) }

	assert.NoError(t, cm.Open(context.Background()))

	// Every further dial fails
	factory.mu.Lock()
	factory.nextErr = errors.New("refused")
	factory.mu.Unlock()

	factory.at(0).drop(errors.New("network reset"))

	select {
	case <-gaveUp:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("reconnect loop did not give up")
	}
	assert.Equal(t, 3, factory.count(), "one original dial plus two failed retries")
}

// Test_Connection_MalformedEventIgnored verifies a bad payload is logged
// and skipped without touching any handler.
func Test_Connection_MalformedEventIgnored(t *testing.T) {
	factory := &channelFactory{}
	cm := NewConnectionManager(factory.make, testIdentity, "ws://test", fastPolicy())

	called := false
	cm.OnMessage = func(chat.Message) { called = true }

	assert.NoError(t, cm.Open(context.Background()))

	ch := factory.at(0)
	ch.mu.Lock()
	handler := ch.onEvent
	ch.mu.Unlock()
	handler(chat.Event{Name: chat.EventMessage, Data: json.RawMessage(`"not an object"`)})

	assert.False(t, called)
}
