package call

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/voicelink/internal/live"
	"github.com/antoniostano/voicelink/internal/observability"
)

var ErrNumberRequired = errors.New("number is required")

// Call is the externally visible record of a dialed call.
type Call struct {
	ID        string    `json:"call_id"`
	Number    string    `json:"number"`
	Name      string    `json:"name,omitempty"`
	State     State     `json:"state"`
	Muted     bool      `json:"muted"`
	CreatedAt time.Time `json:"created_at"`
	ElapsedS  int       `json:"elapsed_s"`
	EndReason string    `json:"end_reason,omitempty"`
}

type Options struct {
	Model      string
	Voice      string
	InputRate  int
	OutputRate int
	Window     int
	DumpDir    string

	// IdleTimeout expires dialed calls no device attached to; Retention drops ended
	// call records. Zero disables either sweep.
	IdleTimeout time.Duration
	Retention   time.Duration
}

type entry struct {
	call    Call
	session *Session
	endedAt time.Time
}

// Manager keeps call records and guarantees at most one running session: attaching a
// new call tears the previous one down completely first.
type Manager struct {
	dialer  live.Dialer
	opts    Options
	metrics *observability.Metrics

	attachMu sync.Mutex

	mu     sync.RWMutex
	calls  map[string]*entry
	active *entry
}

func NewManager(dialer live.Dialer, opts Options, metrics *observability.Metrics) *Manager {
	return &Manager{
		dialer:  dialer,
		opts:    opts,
		metrics: metrics,
		calls:   make(map[string]*entry),
	}
}

// Dial registers a call. Audio starts once a device attaches to it.
func (m *Manager) Dial(number, name string) (Call, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return Call{}, ErrNumberRequired
	}
	e := &entry{call: Call{
		ID:        uuid.NewString(),
		Number:    number,
		Name:      strings.TrimSpace(name),
		State:     StateIdle,
		CreatedAt: time.Now().UTC(),
	}}
	m.mu.Lock()
	m.calls[e.call.ID] = e
	m.mu.Unlock()
	return e.call, nil
}

// Attach runs the call on the given devices and blocks until it ends.
func (m *Manager) Attach(ctx context.Context, id string, devices Devices, hooks Hooks) error {
	m.attachMu.Lock()

	m.mu.RLock()
	e, ok := m.calls[id]
	var prev *entry
	if ok {
		prev = m.active
	}
	m.mu.RUnlock()
	if !ok {
		m.attachMu.Unlock()
		return ErrNotFound
	}
	if prev != nil && prev != e {
		prev.session.End()
		<-prev.session.Done()
	}

	m.mu.Lock()
	if e.session != nil || e.call.State == StateEnded {
		m.mu.Unlock()
		m.attachMu.Unlock()
		return ErrEnded
	}
	sess := NewSession(Params{
		CallID:     e.call.ID,
		Number:     e.call.Number,
		Name:       e.call.Name,
		Model:      m.opts.Model,
		Voice:      m.opts.Voice,
		InputRate:  m.opts.InputRate,
		OutputRate: m.opts.OutputRate,
		Window:     m.opts.Window,
		DumpDir:    m.opts.DumpDir,
	}, devices, m.dialer, m.trackHooks(e, hooks), m.metrics)
	sess.SetMuted(e.call.Muted)
	e.session = sess
	m.active = e
	m.mu.Unlock()
	m.metrics.SetActiveCalls(1)
	m.attachMu.Unlock()

	err := sess.Run(ctx)

	m.mu.Lock()
	if m.active == e {
		m.active = nil
		m.metrics.SetActiveCalls(0)
	}
	m.mu.Unlock()
	return err
}

func (m *Manager) trackHooks(e *entry, hooks Hooks) Hooks {
	return Hooks{
		OnState: func(state State, reason error) {
			m.mu.Lock()
			e.call.State = state
			m.mu.Unlock()
			if hooks.OnState != nil {
				hooks.OnState(state, reason)
			}
		},
		OnLevel: hooks.OnLevel,
		OnTick:  hooks.OnTick,
		OnEnd: func(reason error) {
			m.mu.Lock()
			e.call.State = StateEnded
			e.call.EndReason = ReasonCode(reason)
			e.endedAt = time.Now()
			m.mu.Unlock()
			if hooks.OnEnd != nil {
				hooks.OnEnd(reason)
			}
		},
	}
}

// End hangs up a call whether or not a device ever attached to it.
func (m *Manager) End(id string) (Call, error) {
	m.mu.Lock()
	e, ok := m.calls[id]
	if !ok {
		m.mu.Unlock()
		return Call{}, ErrNotFound
	}
	sess := e.session
	if sess == nil && e.call.State != StateEnded {
		e.call.State = StateEnded
		e.call.EndReason = ReasonCode(nil)
		e.endedAt = time.Now()
	}
	m.mu.Unlock()

	if sess != nil {
		sess.End()
		<-sess.Done()
	}
	return m.Get(id)
}

func (m *Manager) SetMuted(id string, muted bool) (Call, error) {
	m.mu.Lock()
	e, ok := m.calls[id]
	if !ok {
		m.mu.Unlock()
		return Call{}, ErrNotFound
	}
	if e.call.State == StateEnded {
		m.mu.Unlock()
		return Call{}, ErrEnded
	}
	e.call.Muted = muted
	sess := e.session
	m.mu.Unlock()
	if sess != nil {
		sess.SetMuted(muted)
	}
	return m.Get(id)
}

func (m *Manager) Get(id string) (Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return snapshot(e), nil
}

// Active returns the call currently holding audio resources, if any.
func (m *Manager) Active() (Call, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return Call{}, false
	}
	return snapshot(m.active), true
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return 0
	}
	return 1
}

// Shutdown ends every running call.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	var sessions []*Session
	for _, e := range m.calls {
		if e.session != nil {
			sessions = append(sessions, e.session)
		}
	}
	m.mu.RUnlock()
	for _, s := range sessions {
		s.End()
		<-s.Done()
	}
}

func snapshot(e *entry) Call {
	out := e.call
	if e.session != nil {
		out.ElapsedS = int(e.session.Elapsed() / time.Second)
	}
	return out
}

// ReasonCode maps an end reason to the short code shown to clients.
func ReasonCode(reason error) string {
	switch {
	case reason == nil:
		return "hangup"
	case errors.Is(reason, ErrMediaAccessDenied):
		return "media_access_denied"
	case errors.Is(reason, ErrConnectionInit):
		return "connection_failed"
	case errors.Is(reason, ErrRemoteStream):
		return "remote_error"
	default:
		return "error"
	}
}
