package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicelink/internal/audio"
)

// WSDialer speaks the BidiGenerateContent JSON protocol directly over a websocket.
type WSDialer struct {
	URL    string
	APIKey string
	Dialer *websocket.Dialer
}

func NewWSDialer(rawURL, apiKey string) *WSDialer {
	return &WSDialer{URL: strings.TrimSpace(rawURL), APIKey: apiKey, Dialer: websocket.DefaultDialer}
}

func (d *WSDialer) Dial(ctx context.Context, cfg Config) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse live url: %w", err)
	}
	if d.APIKey != "" {
		q := u.Query()
		q.Set("key", d.APIKey)
		u.RawQuery = q.Encode()
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, res, err := dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("dial live websocket: status %d: %w", res.StatusCode, err)
		}
		return nil, fmt.Errorf("dial live websocket: %w", err)
	}

	c := &wsConn{conn: conn, pump: newPump(256)}
	if err := c.writeJSON(newWireSetup(cfg)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send live setup: %w", err)
	}
	c.pump.emit(Event{Type: EventOpen})
	go c.readLoop()
	return c, nil
}

const (
	wsWriteTimeout = 10 * time.Second
	wsCloseTimeout = time.Second
)

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	pump    *pump
}

func (c *wsConn) Send(_ context.Context, chunk audio.Chunk) error {
	if c.pump.closed() {
		return ErrClosed
	}
	return c.writeJSON(wireRealtimeInputMessage{
		RealtimeInput: wireRealtimeInput{Audio: wireBlob{MIMEType: chunk.MIMEType, Data: chunk.Data}},
	})
}

func (c *wsConn) Events() <-chan Event { return c.pump.events }

func (c *wsConn) Close() error {
	if !c.pump.markClosed() {
		return nil
	}
	// WriteControl may run concurrently with a data write, so a Send stuck on a peer
	// that stopped reading cannot hold up the close. Closing the socket unblocks it.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsCloseTimeout))
	return c.conn.Close()
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) readLoop() {
	var readErr error
	defer func() {
		_ = c.conn.Close()
		c.pump.finish(readErr)
	}()
	for {
		// The service sends JSON in both text and binary frames.
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.pump.closed() && !isNormalClose(err) {
				readErr = fmt.Errorf("read live websocket: %w", err)
			}
			return
		}
		var raw wireServerMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			log.Debug().Err(err).Msg("live: skipping undecodable frame")
			continue
		}
		msg, err := raw.toMessage()
		if err != nil {
			log.Debug().Err(err).Msg("live: skipping frame with invalid inline audio")
			continue
		}
		if msg == nil {
			continue
		}
		if !c.pump.emit(Event{Type: EventMessage, Message: msg}) {
			return
		}
	}
}
