package phone

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/antoniostano/voicelink/internal/reply"
)

func TestContactsSearch(t *testing.T) {
	s := NewStore(DefaultContacts())
	if got := s.Contacts(""); len(got) != 4 {
		t.Fatalf("all contacts = %d, want 4", len(got))
	}
	if got := s.Contacts("jAnE"); len(got) != 1 || got[0].Name != "Jane Smith" {
		t.Fatalf("name search = %+v", got)
	}
	if got := s.Contacts("555"); len(got) != 1 || got[0].Number != "+1 555 0199" {
		t.Fatalf("number search = %+v", got)
	}
	if got := s.Contacts("nobody"); len(got) != 0 {
		t.Fatalf("miss = %+v", got)
	}
}

func TestRecordCallPrependsOutgoing(t *testing.T) {
	s := NewStore(nil)
	s.RecordCall("001", "Gemini Assistant")
	s.RecordCall("112", "")
	logs := s.CallLogs()
	if len(logs) != 2 {
		t.Fatalf("logs = %+v", logs)
	}
	if logs[0].Number != "112" || logs[0].Name != "Unknown" || logs[0].Type != CallOutgoing {
		t.Fatalf("newest log = %+v", logs[0])
	}
	if logs[1].Name != "Gemini Assistant" {
		t.Fatalf("older log = %+v", logs[1])
	}
}

func TestOpenThreadReusesByNumber(t *testing.T) {
	s := NewStore(nil)
	a, created, err := s.OpenThread("+1 555 0199", "Jane Smith")
	if err != nil || !created || a.ContactName != "Jane Smith" {
		t.Fatalf("first open = %+v created=%v err=%v", a, created, err)
	}
	b, created, _ := s.OpenThread("+1 555 0199", "someone else")
	if created || b.ID != a.ID {
		t.Fatalf("second open created a new thread: %+v", b)
	}
	c, _, _ := s.OpenThread("0612", "")
	if c.ContactName != "0612" {
		t.Fatalf("unnamed thread contact = %q, want number", c.ContactName)
	}
	if threads := s.Threads(); threads[0].ID != c.ID {
		t.Fatalf("new thread not prepended: %+v", threads)
	}
	if _, _, err := s.OpenThread(" ", "x"); !errors.Is(err, ErrNumberRequired) {
		t.Fatalf("empty number err = %v", err)
	}
}

func TestThreadSnapshotsAreIsolated(t *testing.T) {
	s := NewStore(nil)
	th, _, _ := s.OpenThread("1", "A")
	_, _ = s.AppendMessage(th.ID, SenderMe, "hi")
	snap, _ := s.Thread(th.ID)
	snap.Messages[0].Text = "mutated"
	again, _ := s.Thread(th.ID)
	if again.Messages[0].Text != "hi" {
		t.Fatal("snapshot shares storage with the store")
	}
}

func TestNavigator(t *testing.T) {
	n := NewNavigator()
	if v := n.View(); v.Screen != ScreenDialer || !v.NavVisible {
		t.Fatalf("initial view = %+v", v)
	}
	if _, err := n.Navigate(ScreenInCall); !errors.Is(err, ErrNotNavigable) {
		t.Fatalf("navigate to in-call err = %v", err)
	}
	if v, _ := n.Navigate(ScreenRecents); v.Screen != ScreenRecents {
		t.Fatalf("view = %+v", v)
	}
	if v := n.StartCall("c1"); v.Screen != ScreenInCall || v.NavVisible || v.ActiveCallID != "c1" {
		t.Fatalf("in call view = %+v", v)
	}
	if v := n.EndCall("other"); v.Screen != ScreenInCall {
		t.Fatalf("ending a different call changed screen: %+v", v)
	}
	if v := n.EndCall("c1"); v.Screen != ScreenDialer || v.ActiveCallID != "" {
		t.Fatalf("after end view = %+v", v)
	}
	if v := n.OpenChat("t1"); v.Screen != ScreenChat || v.NavVisible {
		t.Fatalf("chat view = %+v", v)
	}
	if v := n.Back(); v.Screen != ScreenMessages || !v.NavVisible {
		t.Fatalf("back view = %+v", v)
	}
	n.OpenChat("t1")
	n.ThreadDeleted("t1")
	if v := n.View(); v.Screen != ScreenMessages || v.ActiveThreadID != "" {
		t.Fatalf("after delete view = %+v", v)
	}
}

func TestDialPad(t *testing.T) {
	var d DialPad
	if _, err := d.Dial(); !errors.Is(err, ErrNumberRequired) {
		t.Fatalf("empty dial err = %v", err)
	}
	if _, err := d.Press("+3106"); err != nil {
		t.Fatalf("Press() error = %v", err)
	}
	if _, err := d.Press("a"); err == nil {
		t.Fatal("letters must be rejected")
	}
	if got := d.Backspace(); got != "+310" {
		t.Fatalf("after backspace = %q", got)
	}
	if n, err := d.Dial(); err != nil || n != "+310" {
		t.Fatalf("Dial() = %q, %v", n, err)
	}
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []reply.Request
	text     string
	err      error
	release  chan struct{}
}

func (g *fakeGenerator) Reply(_ context.Context, req reply.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.release != nil {
		<-g.release
	}
	return g.text, g.err
}

func TestMessengerAppendsReplyAfterOutgoing(t *testing.T) {
	s := NewStore(DefaultContacts())
	gen := &fakeGenerator{text: "Hoi!", release: make(chan struct{})}
	m := NewMessenger(s, gen, 0, nil)
	th, _, _ := s.OpenThread("+1 555 0199", "Jane Smith")

	msg, err := m.Send(th.ID, "  Hallo ")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Sender != SenderMe || msg.Text != "Hallo" {
		t.Fatalf("outgoing = %+v", msg)
	}
	// The outgoing message is visible before the reply arrives.
	mid, _ := s.Thread(th.ID)
	if len(mid.Messages) != 1 || mid.LastMessage != "Hallo" {
		t.Fatalf("thread before reply = %+v", mid)
	}

	close(gen.release)
	m.Wait()

	got, _ := s.Thread(th.ID)
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.Messages[0].Sender != SenderMe || got.Messages[1].Sender != SenderThem || got.Messages[1].Text != "Hoi!" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.LastMessage != "Hoi!" {
		t.Fatalf("last message = %q", got.LastMessage)
	}
	if len(gen.requests) != 1 || gen.requests[0].ContactName != "Jane Smith" || gen.requests[0].Text != "Hallo" {
		t.Fatalf("requests = %+v", gen.requests)
	}
}

func TestMessengerFailureKeepsOutgoingOnly(t *testing.T) {
	s := NewStore(nil)
	gen := &fakeGenerator{err: reply.ErrEmptyReply}
	m := NewMessenger(s, gen, 0, nil)
	th, _, _ := s.OpenThread("1", "A")

	if _, err := m.Send(th.ID, "ping"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	m.Wait()
	got, _ := s.Thread(th.ID)
	if len(got.Messages) != 1 || got.Messages[0].Sender != SenderMe {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestMessengerDropsReplyForDeletedThread(t *testing.T) {
	s := NewStore(nil)
	gen := &fakeGenerator{text: "late", release: make(chan struct{})}
	m := NewMessenger(s, gen, 0, nil)
	th, _, _ := s.OpenThread("1", "A")
	other, _, _ := s.OpenThread("2", "B")

	if _, err := m.Send(th.ID, "ping"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := s.DeleteThread(th.ID); err != nil {
		t.Fatalf("DeleteThread() error = %v", err)
	}
	close(gen.release)
	m.Wait()

	if _, err := s.Thread(th.ID); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("deleted thread still present: %v", err)
	}
	if got, _ := s.Thread(other.ID); len(got.Messages) != 0 {
		t.Fatalf("reply leaked into another thread: %+v", got.Messages)
	}
}

func TestMessengerRejectsBadInput(t *testing.T) {
	s := NewStore(nil)
	m := NewMessenger(s, &fakeGenerator{}, 0, nil)
	th, _, _ := s.OpenThread("1", "A")
	if _, err := m.Send(th.ID, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("empty err = %v", err)
	}
	if _, err := m.Send("missing", "hi"); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("missing thread err = %v", err)
	}
	m.Wait()
}

func TestDialString(t *testing.T) {
	if got := DialString("+1 555 0199"); got != "+15550199" {
		t.Fatalf("DialString() = %q", got)
	}
	if got := DialString("800-AI-HELP"); got != "800" {
		t.Fatalf("DialString() = %q", got)
	}
}
