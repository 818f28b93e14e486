package phone

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicelink/internal/observability"
	"github.com/antoniostano/voicelink/internal/policy"
	"github.com/antoniostano/voicelink/internal/reply"
)

// Messenger sends chat messages and collects the counterpart's answer in the
// background.
type Messenger struct {
	store   *Store
	gen     reply.Generator
	timeout time.Duration
	metrics *observability.Metrics

	wg sync.WaitGroup
}

func NewMessenger(store *Store, gen reply.Generator, timeout time.Duration, metrics *observability.Metrics) *Messenger {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Messenger{store: store, gen: gen, timeout: timeout, metrics: metrics}
}

// Send appends the outgoing message immediately and requests one reply. The reply is
// appended to the same thread when it arrives; failures are logged and leave the
// outgoing message in place.
func (m *Messenger) Send(threadID, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	thread, err := m.store.Thread(threadID)
	if err != nil {
		return Message{}, err
	}
	msg, err := m.store.AppendMessage(threadID, SenderMe, text)
	if err != nil {
		return Message{}, err
	}

	m.wg.Add(1)
	go m.reply(reply.Request{ThreadID: threadID, ContactName: thread.ContactName, Text: text})
	return msg, nil
}

func (m *Messenger) reply(req reply.Request) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	started := time.Now()
	text, err := m.gen.Reply(ctx, req)
	if err != nil {
		m.metrics.ObserveReply("error", time.Since(started))
		log.Error().Str("error", policy.RedactError(err)).Str("thread_id", req.ThreadID).Msg("reply generation failed")
		return
	}
	if _, err := m.store.AppendMessage(req.ThreadID, SenderThem, text); err != nil {
		m.metrics.ObserveReply("dropped", time.Since(started))
		log.Warn().Err(err).Str("thread_id", req.ThreadID).Msg("dropping reply for missing thread")
		return
	}
	m.metrics.ObserveReply("ok", time.Since(started))
}

// Wait blocks until every in-flight reply has been applied or dropped.
func (m *Messenger) Wait() {
	m.wg.Wait()
}
