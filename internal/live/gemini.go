package live

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/antoniostano/voicelink/internal/audio"
)

var ErrMissingAPIKey = errors.New("live: api key is not configured")

// GeminiDialer opens sessions through the genai Live API. A client is created per dial
// so a missing key only fails the call that needs it.
type GeminiDialer struct {
	APIKey string
}

func NewGeminiDialer(apiKey string) *GeminiDialer {
	return &GeminiDialer{APIKey: strings.TrimSpace(apiKey)}
}

func (d *GeminiDialer) Dial(ctx context.Context, cfg Config) (Conn, error) {
	if d.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  d.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	session, err := client.Live.Connect(ctx, cfg.Model, liveConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}

	c := &geminiConn{session: session, pump: newPump(256)}
	c.pump.emit(Event{Type: EventOpen})
	go c.receiveLoop()
	return c, nil
}

func liveConnectConfig(cfg Config) *genai.LiveConnectConfig {
	modality := cfg.Modality
	if modality == "" {
		modality = ModalityAudio
	}
	out := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.Modality(modality)},
	}
	if cfg.Voice != "" {
		out.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		out.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(cfg.SystemInstruction)}}
	}
	return out
}

type geminiConn struct {
	session *genai.Session
	sendMu  sync.Mutex
	pump    *pump
}

func (c *geminiConn) Send(_ context.Context, chunk audio.Chunk) error {
	if c.pump.closed() {
		return ErrClosed
	}
	pcm, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return fmt.Errorf("decode chunk: %w", err)
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: chunk.MIMEType},
	})
}

func (c *geminiConn) Events() <-chan Event { return c.pump.events }

func (c *geminiConn) Close() error {
	if !c.pump.markClosed() {
		return nil
	}
	return c.session.Close()
}

func (c *geminiConn) receiveLoop() {
	var recvErr error
	defer func() { c.pump.finish(recvErr) }()
	for {
		msg, err := c.session.Receive()
		if err != nil {
			if !c.pump.closed() && !isNormalClose(err) {
				recvErr = fmt.Errorf("receive live message: %w", err)
			}
			return
		}
		out := fromLiveServerMessage(msg)
		if out == nil {
			continue
		}
		if !c.pump.emit(Event{Type: EventMessage, Message: out}) {
			return
		}
	}
}

func fromLiveServerMessage(msg *genai.LiveServerMessage) *Message {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	sc := msg.ServerContent
	out := &Message{Interrupted: sc.Interrupted, TurnComplete: sc.TurnComplete}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if !isAudioMIME(part.InlineData.MIMEType) {
				continue
			}
			out.Audio = append(out.Audio, part.InlineData.Data)
		}
	}
	if !out.HasAudio() && !out.Interrupted && !out.TurnComplete {
		return nil
	}
	return out
}
