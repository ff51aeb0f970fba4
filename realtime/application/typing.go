package application

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/sirupsen/logrus"
)

// DefaultTypingIdle is the idle window after the last keystroke before
// the local typing session closes automatically.
const DefaultTypingIdle = time.Second

// TypingCoordinator bounds outbound typing signals to one per session:
// Idle -> Typing emits exactly one typing=true, further keystrokes only
// refresh the idle timer, and the session closes with exactly one
// typing=false (idle expiry or explicit stop). Inbound signals are kept
// only for the currently open peer.
type TypingCoordinator struct {
	emit       func(ctx context.Context, peerID string, isTyping bool) error
	idleWindow time.Duration

	mu         sync.Mutex
	activePeer string
	typing     bool
	idleTimer  *time.Timer
	peerTyping bool

	// OnPeerTyping fires when the open peer's typing flag changes.
	OnPeerTyping func(peerID string, isTyping bool)
}

func NewTypingCoordinator(emit func(ctx context.Context, peerID string, isTyping bool) error, idleWindow time.Duration) *TypingCoordinator {
	if idleWindow <= 0 {
		idleWindow = DefaultTypingIdle
	}
	return &TypingCoordinator{
		emit:       emit,
		idleWindow: idleWindow,
	}
}

// SetActivePeer switches the open conversation. Any local typing
// session is closed synchronously against the previous peer, and no
// typing state carries over.
func (tc *TypingCoordinator) SetActivePeer(peerID string) {
	tc.Stop()

	tc.mu.Lock()
	tc.activePeer = peerID
	tc.peerTyping = false
	tc.mu.Unlock()
}

// ActivePeer returns the peer whose typing signals are rendered.
func (tc *TypingCoordinator) ActivePeer() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.activePeer
}

// Keystroke records local input activity. The first keystroke of a
// session emits typing=true; subsequent ones only refresh the idle
// timer.
func (tc *TypingCoordinator) Keystroke() {
	tc.mu.Lock()
	peer := tc.activePeer
	if peer == "" {
		tc.mu.Unlock()
		return
	}

	if tc.typing {
		tc.idleTimer.Reset(tc.idleWindow)
		tc.mu.Unlock()
		return
	}

	tc.typing = true
	tc.idleTimer = time.AfterFunc(tc.idleWindow, tc.idleExpired)
	tc.mu.Unlock()

	if err := tc.emit(context.Background(), peer, true); err != nil {
		logrus.WithError(err).Debug("[TypingCoordinator] Failed to emit typing=true")
	}
}

// Stop force-closes the local typing session (message sent, peer
// changed, teardown) with a synchronous typing=false, bypassing the
// idle timer. Emits nothing when no session is open.
func (tc *TypingCoordinator) Stop() {
	tc.mu.Lock()
	if !tc.typing {
		tc.mu.Unlock()
		return
	}
	tc.typing = false
	if tc.idleTimer != nil {
		tc.idleTimer.Stop()
		tc.idleTimer = nil
	}
	peer := tc.activePeer
	tc.mu.Unlock()

	if err := tc.emit(context.Background(), peer, false); err != nil {
		logrus.WithError(err).Debug("[TypingCoordinator] Failed to emit typing=false")
	}
}

// HandleRemote applies an inbound typing signal. Signals from any peer
// other than the open one are ignored; no background typing state is
// retained for unopened conversations.
func (tc *TypingCoordinator) HandleRemote(ev chat.TypingEvent) {
	tc.mu.Lock()
	if tc.activePeer == "" || ev.PeerID != tc.activePeer {
		tc.mu.Unlock()
		return
	}
	changed := tc.peerTyping != ev.IsTyping
	tc.peerTyping = ev.IsTyping
	hook := tc.OnPeerTyping
	tc.mu.Unlock()

	if changed && hook != nil {
		hook(ev.PeerID, ev.IsTyping)
	}
}

// PeerTyping reports whether the open peer is currently composing.
func (tc *TypingCoordinator) PeerTyping() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.peerTyping
}

// Teardown cancels the idle timer without emitting; the channel is
// going away with the session.
func (tc *TypingCoordinator) Teardown() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.typing = false
	tc.activePeer = ""
	tc.peerTyping = false
	if tc.idleTimer != nil {
		tc.idleTimer.Stop()
		tc.idleTimer = nil
	}
}

func (tc *TypingCoordinator) idleExpired() {
	tc.mu.Lock()
	if !tc.typing {
		tc.mu.Unlock()
		return
	}
	tc.typing = false
	tc.idleTimer = nil
	peer := tc.activePeer
	tc.mu.Unlock()

	if err := tc.emit(context.Background(), peer, false); err != nil {
		logrus.WithError(err).Debug("[TypingCoordinator] Failed to emit typing=false on idle")
	}
}
