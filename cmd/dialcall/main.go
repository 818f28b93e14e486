// Command dialcall plays the part of a handset: it dials a call through the HTTP API,
// grants the microphone, streams a WAV file or a test tone as microphone audio and
// records whatever the call plays back into a WAV file.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/voicelink/internal/audio"
	"github.com/antoniostano/voicelink/internal/protocol"
)

type options struct {
	baseURL  string
	number   string
	name     string
	input    string
	toneHz   int
	toneLen  time.Duration
	chunkMS  int
	realtime float64
	hold     time.Duration
	timeout  time.Duration
	output   string
	verbose  bool
}

type createCallResponse struct {
	CallID string `json:"call_id"`
}

type settingsResponse struct {
	InputSampleRate  int `json:"input_sample_rate"`
	OutputSampleRate int `json:"output_sample_rate"`
}

type wsEnvelope struct {
	Type        string  `json:"type"`
	State       string  `json:"state,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	Code        string  `json:"code,omitempty"`
	Detail      string  `json:"detail,omitempty"`
	StartTime   float64 `json:"start_time,omitempty"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	AudioBase64 string  `json:"audio_base64,omitempty"`
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dialcall: %v\n", err)
		os.Exit(2)
	}
	res, err := run(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dialcall: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("dialcall: call=%s ended=%s buffers=%d playback=%.2fs\n",
		res.callID, res.endReason, res.buffers, res.playbackSeconds)
}

func parseFlags() (options, error) {
	var cfg options
	var toneMS, holdMS, timeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "voicelink base URL")
	flag.StringVar(&cfg.number, "number", "001", "number to dial")
	flag.StringVar(&cfg.name, "name", "Gemini Assistant", "contact name for the call")
	flag.StringVar(&cfg.input, "input", "", "PCM16 WAV file to stream as microphone audio (default: test tone)")
	flag.IntVar(&cfg.toneHz, "tone-hz", 440, "test tone frequency when no input file is given")
	flag.IntVar(&toneMS, "tone-ms", 3000, "test tone length in milliseconds")
	flag.IntVar(&cfg.chunkMS, "chunk-ms", 40, "microphone frame size in milliseconds")
	flag.Float64Var(&cfg.realtime, "realtime", 1.0, "pacing multiplier (1.0=realtime, 2.0=2x)")
	flag.IntVar(&holdMS, "hold-ms", 4000, "time to keep listening after the input is sent")
	flag.IntVar(&timeoutMS, "timeout-ms", 60000, "overall call timeout")
	flag.StringVar(&cfg.output, "out", "playback.wav", "WAV file receiving the call's playback audio")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print call progress")
	flag.Parse()

	cfg.toneLen = time.Duration(toneMS) * time.Millisecond
	cfg.hold = time.Duration(holdMS) * time.Millisecond
	cfg.timeout = time.Duration(timeoutMS) * time.Millisecond
	return cfg, cfg.validate()
}

func (o *options) validate() error {
	o.baseURL = strings.TrimRight(strings.TrimSpace(o.baseURL), "/")
	if o.baseURL == "" {
		return fmt.Errorf("base-url is required")
	}
	if strings.TrimSpace(o.number) == "" {
		return fmt.Errorf("number is required")
	}
	if o.chunkMS < 10 || o.chunkMS > 2000 {
		return fmt.Errorf("chunk-ms must be in [10,2000]")
	}
	if o.realtime <= 0 {
		return fmt.Errorf("realtime must be > 0")
	}
	if o.input == "" && (o.toneHz <= 0 || o.toneLen <= 0) {
		return fmt.Errorf("tone-hz and tone-ms must be > 0 without an input file")
	}
	if o.hold < 0 {
		o.hold = 0
	}
	if o.timeout < time.Second {
		o.timeout = time.Second
	}
	return nil
}

type result struct {
	callID          string
	endReason       string
	buffers         int
	playbackSeconds float64
}

// recorder collects playback buffers in the order the call scheduled them.
type recorder struct {
	mu      sync.Mutex
	pcm     bytes.Buffer
	rate    int
	buffers int
}

func (r *recorder) add(env wsEnvelope) error {
	pcm, err := base64.StdEncoding.DecodeString(env.AudioBase64)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rate == 0 {
		r.rate = env.SampleRate
	}
	r.pcm.Write(pcm)
	r.buffers++
	return nil
}

// wsWriter serializes writes; gorilla connections allow a single concurrent writer.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) write(msg any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(msg)
}

func run(ctx context.Context, cfg options) (result, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	client := &http.Client{Timeout: 15 * time.Second}
	settings, err := fetchSettings(ctx, client, cfg.baseURL)
	if err != nil {
		return result{}, fmt.Errorf("fetch settings: %w", err)
	}
	pcm, err := loadInput(cfg, settings.InputSampleRate)
	if err != nil {
		return result{}, fmt.Errorf("prepare input audio: %w", err)
	}

	callID, err := createCall(ctx, client, cfg)
	if err != nil {
		return result{}, fmt.Errorf("create call: %w", err)
	}
	res := result{callID: callID}
	if cfg.verbose {
		fmt.Printf("dialcall: call=%s number=%s input_rate=%dHz bytes=%d\n", callID, cfg.number, settings.InputSampleRate, len(pcm))
	}

	wsURL, err := wsURLForCall(cfg.baseURL, callID)
	if err != nil {
		return res, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return res, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()
	w := &wsWriter{conn: conn}

	rec := &recorder{}
	active := make(chan struct{})
	ended := make(chan string, 1)
	readErr := make(chan error, 1)
	go readLoop(conn, w, callID, rec, active, ended, readErr, cfg.verbose)

	select {
	case <-active:
	case reason := <-ended:
		return res, fmt.Errorf("call ended before it became active: %s", reason)
	case err := <-readErr:
		return res, fmt.Errorf("ws read: %w", err)
	case <-ctx.Done():
		return res, ctx.Err()
	}

	if err := sendAudio(ctx, w, callID, pcm, settings.InputSampleRate, cfg.chunkMS, cfg.realtime); err != nil {
		return res, fmt.Errorf("send audio: %w", err)
	}

	select {
	case reason := <-ended:
		res.endReason = reason
	case <-time.After(cfg.hold):
		_ = w.write(protocol.ClientControl{
			Type:   protocol.TypeClientControl,
			CallID: callID,
			Action: protocol.ActionEnd,
			TSMs:   time.Now().UnixMilli(),
		})
		select {
		case reason := <-ended:
			res.endReason = reason
		case err := <-readErr:
			return res, fmt.Errorf("ws read: %w", err)
		case <-ctx.Done():
			return res, ctx.Err()
		}
	case err := <-readErr:
		return res, fmt.Errorf("ws read: %w", err)
	case <-ctx.Done():
		return res, ctx.Err()
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	res.buffers = rec.buffers
	rate := rec.rate
	if rate <= 0 {
		rate = settings.OutputSampleRate
	}
	if rate > 0 {
		res.playbackSeconds = float64(rec.pcm.Len()/2) / float64(rate)
	}
	if cfg.output != "" {
		if err := audio.WriteWAVPCM16LEFile(cfg.output, rec.pcm.Bytes(), rate); err != nil {
			return res, fmt.Errorf("write %s: %w", cfg.output, err)
		}
	}
	return res, nil
}

func loadInput(cfg options, inputRate int) ([]byte, error) {
	if inputRate <= 0 {
		return nil, fmt.Errorf("server reported input sample rate %d", inputRate)
	}
	if cfg.input == "" {
		return audio.SineTonePCM16LE(cfg.toneHz, inputRate, cfg.toneLen, 0.3), nil
	}
	data, err := os.ReadFile(cfg.input)
	if err != nil {
		return nil, err
	}
	pcm, rate, err := audio.DecodeWAVPCM16(data)
	if err != nil {
		return nil, err
	}
	if rate != inputRate {
		return nil, fmt.Errorf("%s is %d Hz, the call captures at %d Hz", cfg.input, rate, inputRate)
	}
	return pcm, nil
}

func doJSON(ctx context.Context, client *http.Client, method, rawURL string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != wantStatus {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

func fetchSettings(ctx context.Context, client *http.Client, baseURL string) (settingsResponse, error) {
	var out settingsResponse
	err := doJSON(ctx, client, http.MethodGet, baseURL+"/v1/settings", nil, http.StatusOK, &out)
	return out, err
}

func createCall(ctx context.Context, client *http.Client, cfg options) (string, error) {
	var out createCallResponse
	body := map[string]string{"number": cfg.number, "name": cfg.name}
	if err := doJSON(ctx, client, http.MethodPost, cfg.baseURL+"/v1/calls", body, http.StatusCreated, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.CallID) == "" {
		return "", errors.New("missing call_id in response")
	}
	return out.CallID, nil
}

func wsURLForCall(baseURL, callID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/calls/ws"
	q := u.Query()
	q.Set("call_id", callID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, w *wsWriter, callID string, rec *recorder, active chan<- struct{}, ended chan<- string, readErr chan<- error, verbose bool) {
	var activeOnce sync.Once
	sawEnd := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if sawEnd {
				// The server closes the socket right after the final call_state.
				return
			}
			select {
			case readErr <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch protocol.MessageType(env.Type) {
		case protocol.TypeSystemEvent:
			if env.Code == protocol.CodeMicRequest {
				_ = w.write(protocol.ClientControl{
					Type:   protocol.TypeClientControl,
					CallID: callID,
					Action: protocol.ActionMicGranted,
					TSMs:   time.Now().UnixMilli(),
				})
			}
		case protocol.TypeCallState:
			if verbose {
				fmt.Printf("dialcall: state=%s %s\n", env.State, env.Reason)
			}
			switch env.State {
			case "active":
				activeOnce.Do(func() { close(active) })
			case "ended":
				sawEnd = true
				select {
				case ended <- env.Reason:
				default:
				}
			}
		case protocol.TypePlaybackScheduled:
			if err := rec.add(env); err != nil && verbose {
				fmt.Fprintf(os.Stderr, "dialcall: bad playback buffer: %v\n", err)
			}
		case protocol.TypeErrorEvent:
			if verbose {
				fmt.Fprintf(os.Stderr, "dialcall: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
	}
}

// chunkPCM splits pcm into frames of chunkMS at sampleRate, keeping sample alignment.
func chunkPCM(pcm []byte, sampleRate, chunkMS int) [][]byte {
	size := sampleRate * 2 * chunkMS / 1000
	if size%2 != 0 {
		size++
	}
	if size < 2 {
		size = 2
	}
	pcm = pcm[:len(pcm)-len(pcm)%2]
	out := make([][]byte, 0, len(pcm)/size+1)
	for off := 0; off < len(pcm); off += size {
		end := off + size
		if end > len(pcm) {
			end = len(pcm)
		}
		out = append(out, pcm[off:end])
	}
	return out
}

func sendAudio(ctx context.Context, w *wsWriter, callID string, pcm []byte, sampleRate, chunkMS int, realtime float64) error {
	for i, chunk := range chunkPCM(pcm, sampleRate, chunkMS) {
		msg := protocol.ClientAudioChunk{
			Type:        protocol.TypeClientAudioChunk,
			CallID:      callID,
			Seq:         i + 1,
			PCM16Base64: base64.StdEncoding.EncodeToString(chunk),
			SampleRate:  sampleRate,
			TSMs:        time.Now().UnixMilli(),
		}
		if err := w.write(msg); err != nil {
			return err
		}
		pace := time.Duration(float64(time.Duration(len(chunk))*time.Second/time.Duration(sampleRate*2)) / realtime)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pace):
		}
	}
	return nil
}
