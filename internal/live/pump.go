package live

import (
	"errors"
	"net"
	"sync"

	"github.com/gorilla/websocket"
)

// pump owns the Events channel of a Conn implementation. emit blocks until the
// consumer reads or the connection is closed locally; finish is called exactly once by
// the goroutine that produces events.
type pump struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func newPump(size int) *pump {
	return &pump{events: make(chan Event, size), done: make(chan struct{})}
}

func (p *pump) emit(ev Event) bool {
	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	}
}

func (p *pump) emitFinal(ev Event) {
	select {
	case p.events <- ev:
	case <-p.done:
		select {
		case p.events <- ev:
		default:
		}
	}
}

func (p *pump) finish(err error) {
	if err != nil {
		p.emitFinal(Event{Type: EventError, Err: err})
	}
	p.emitFinal(Event{Type: EventClose})
	close(p.events)
}

// markClosed reports true the first time it is called.
func (p *pump) markClosed() bool {
	first := false
	p.closeOnce.Do(func() {
		first = true
		close(p.done)
	})
	return first
}

func (p *pump) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// isNormalClose reports whether a read error is an orderly end of stream rather than a
// transport failure.
func isNormalClose(err error) bool {
	if err == nil {
		return true
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return errors.Is(err, net.ErrClosed)
}
