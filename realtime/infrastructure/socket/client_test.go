package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

var upgrader = websocket.Upgrader{}

type testServer struct {
	srv *httptest.Server

	mu        sync.Mutex
	authHdr   string
	received  []chat.Event
	conn      *websocket.Conn
	connReady chan struct{}
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{connReady: make(chan struct{})}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.authHdr = r.Header.Get("Authorization")
		ts.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ts.mu.Lock()
		ts.conn = conn
		ts.mu.Unlock()
		close(ts.connReady)

		for {
			var ev chat.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			ts.mu.Lock()
			ts.received = append(ts.received, ev)
			ts.mu.Unlock()
		}
	}))
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) push(t *testing.T, name chat.EventName, payload any) {
	data, err := json.Marshal(payload)
	assert.NoError(t, err)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	assert.NoError(t, ts.conn.WriteJSON(chat.Event{Name: name, Data: data}))
}

func (ts *testServer) frames() []chat.Event {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]chat.Event, len(ts.received))
	copy(out, ts.received)
	return out
}

func Test_Socket_ConnectEmitReceive(t *testing.T) {
	ts := newTestServer(t)
	defer ts.srv.Close()

	ch, err := New(chat.ChannelConfig{URL: ts.url(), UserID: "me", Token: "tok_123"})
	assert.NoError(t, err)

	events := make(chan chat.Event, 4)
	ch.OnEvent(func(ev chat.Event) { events <- ev })
	ch.OnDisconnect(func(error) {})

	assert.NoError(t, ch.Connect(context.Background()))
	defer ch.Close()
	assert.Equal(t, chat.ChannelStatusConnected, ch.Status())

	<-ts.connReady
	ts.mu.Lock()
	auth := ts.authHdr
	ts.mu.Unlock()
	assert.Equal(t, "Bearer tok_123", auth)

	// Outbound frame lands on the server
	assert.NoError(t, ch.Emit(context.Background(), chat.EventIdentify, chat.IdentifyEvent{UserID: "me"}))
	assert.Eventually(t, func() bool { return len(ts.frames()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, chat.EventIdentify, ts.frames()[0].Name)

	// Inbound frame reaches the handler
	ts.push(t, chat.EventTyping, chat.TypingEvent{PeerID: "peer_1", IsTyping: true})
	select {
	case ev := <-events:
		assert.Equal(t, chat.EventTyping, ev.Name)
		var typing chat.TypingEvent
		assert.NoError(t, json.Unmarshal(ev.Data, &typing))
		assert.True(t, typing.IsTyping)
	case <-time.After(time.Second):
		t.Fatal("inbound event never arrived")
	}
}

func Test_Socket_EmitWhenDisconnected(t *testing.T) {
	ch, err := New(chat.ChannelConfig{URL: "ws://localhost:1", Token: "tok"})
	assert.NoError(t, err)

	err = ch.Emit(context.Background(), chat.EventIdentify, chat.IdentifyEvent{UserID: "me"})
	assert.Error(t, err)
}

func Test_Socket_ExplicitCloseSuppressesDisconnect(t *testing.T) {
	ts := newTestServer(t)
	defer ts.srv.Close()

	ch, err := New(chat.ChannelConfig{URL: ts.url(), Token: "tok"})
	assert.NoError(t, err)

	dropped := make(chan error, 1)
	ch.OnEvent(func(chat.Event) {})
	ch.OnDisconnect(func(err error) { dropped <- err })

	assert.NoError(t, ch.Connect(context.Background()))
	assert.NoError(t, ch.Close())
	assert.NoError(t, ch.Close(), "close is idempotent")
	assert.Equal(t, chat.ChannelStatusDisconnected, ch.Status())

	select {
	case <-dropped:
		t.Fatal("explicit close must not fire the disconnect callback")
	case <-time.After(100 * time.Millisecond):
	}
}

func Test_Socket_ServerDropFiresDisconnect(t *testing.T) {
	ts := newTestServer(t)
	defer ts.srv.Close()

	ch, err := New(chat.ChannelConfig{URL: ts.url(), Token: "tok"})
	assert.NoError(t, err)

	dropped := make(chan error, 1)
	ch.OnEvent(func(chat.Event) {})
	ch.OnDisconnect(func(err error) { dropped <- err })

	assert.NoError(t, ch.Connect(context.Background()))
	<-ts.connReady

	ts.mu.Lock()
	ts.conn.Close()
	ts.mu.Unlock()

	select {
	case err := <-dropped:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("disconnect callback never fired")
	}
	assert.Equal(t, chat.ChannelStatusDisconnected, ch.Status())
}
