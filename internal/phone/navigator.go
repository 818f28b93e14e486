package phone

import (
	"errors"
	"sync"
)

type Screen string

const (
	ScreenDialer   Screen = "DIALER"
	ScreenContacts Screen = "CONTACTS"
	ScreenRecents  Screen = "RECENTS"
	ScreenMessages Screen = "MESSAGES"
	ScreenChat     Screen = "CHAT"
	ScreenInCall   Screen = "IN_CALL"
)

var ErrNotNavigable = errors.New("screen is not reachable from the navigation bar")

// View is what the handset shows right now.
type View struct {
	Screen         Screen `json:"screen"`
	NavVisible     bool   `json:"nav_visible"`
	ActiveThreadID string `json:"active_thread_id,omitempty"`
	ActiveCallID   string `json:"active_call_id,omitempty"`
}

type Navigator struct {
	mu       sync.Mutex
	screen   Screen
	threadID string
	callID   string
}

func NewNavigator() *Navigator {
	return &Navigator{screen: ScreenDialer}
}

// Navigate switches tabs. Only the four tab screens are valid targets.
func (n *Navigator) Navigate(screen Screen) (View, error) {
	switch screen {
	case ScreenDialer, ScreenContacts, ScreenRecents, ScreenMessages:
	default:
		return n.View(), ErrNotNavigable
	}
	n.mu.Lock()
	n.screen = screen
	n.mu.Unlock()
	return n.View(), nil
}

func (n *Navigator) StartCall(callID string) View {
	n.mu.Lock()
	n.screen = ScreenInCall
	n.callID = callID
	n.mu.Unlock()
	return n.View()
}

// EndCall returns to the dial pad if callID is the call on screen.
func (n *Navigator) EndCall(callID string) View {
	n.mu.Lock()
	if n.callID == callID {
		n.callID = ""
		if n.screen == ScreenInCall {
			n.screen = ScreenDialer
		}
	}
	n.mu.Unlock()
	return n.View()
}

func (n *Navigator) OpenChat(threadID string) View {
	n.mu.Lock()
	n.screen = ScreenChat
	n.threadID = threadID
	n.mu.Unlock()
	return n.View()
}

// Back leaves a chat for the thread list. Other screens have no back action.
func (n *Navigator) Back() View {
	n.mu.Lock()
	if n.screen == ScreenChat {
		n.screen = ScreenMessages
	}
	n.mu.Unlock()
	return n.View()
}

// ThreadDeleted leaves the chat screen when its thread disappears.
func (n *Navigator) ThreadDeleted(threadID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.threadID != threadID {
		return
	}
	n.threadID = ""
	if n.screen == ScreenChat {
		n.screen = ScreenMessages
	}
}

func (n *Navigator) View() View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return View{
		Screen:         n.screen,
		NavVisible:     n.screen != ScreenInCall && n.screen != ScreenChat,
		ActiveThreadID: n.threadID,
		ActiveCallID:   n.callID,
	}
}
