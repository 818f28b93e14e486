package reply

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/voicelink/internal/reliability"
)

// HTTPGenerator posts the request to a JSON endpoint. Plain JSON, plain text, SSE and
// NDJSON responses are accepted; streamed fragments are concatenated. With the default
// single attempt a failure is final.
type HTTPGenerator struct {
	url    string
	client *http.Client
	retry  reliability.Policy
}

type httpPayload struct {
	Request
	Prompt            string `json:"prompt"`
	SystemInstruction string `json:"system_instruction"`
}

// NewHTTPGenerator builds a generator that makes up to attempts requests per reply,
// retrying only transport errors and retryable statuses. attempts below 1 means 1.
func NewHTTPGenerator(url string, attempts int) *HTTPGenerator {
	return &HTTPGenerator{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		retry: reliability.Policy{Attempts: attempts, Base: 250 * time.Millisecond, Max: 2 * time.Second},
	}
}

func (g *HTTPGenerator) Reply(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(httpPayload{
		Request:           req,
		Prompt:            Prompt(req),
		SystemInstruction: SystemInstruction(req.ContactName),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var text string
	err = g.retry.Do(ctx, func(int) error {
		var err error
		text, err = g.post(ctx, payload)
		return err
	})
	if err != nil {
		return "", err
	}
	return normalizeReply(text)
}

// post sends one attempt. Errors are Permanent unless the endpoint may recover.
func (g *HTTPGenerator) post(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return "", reliability.Permanent(fmt.Errorf("%w: create request: %w", ErrRemoteRequest, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", reliability.Permanent(fmt.Errorf("%w: send request: %w", ErrRemoteRequest, err))
		}
		return "", fmt.Errorf("%w: send request: %w", ErrRemoteRequest, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		err := fmt.Errorf("%w: http status %d: %s", ErrRemoteRequest, res.StatusCode, string(body))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return "", err
		}
		return "", reliability.Permanent(err)
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		text, err := consumeStreaming(res.Body)
		if err != nil {
			return "", reliability.Permanent(fmt.Errorf("%w: %w", ErrRemoteRequest, err))
		}
		return text, nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", reliability.Permanent(fmt.Errorf("%w: read response: %w", ErrRemoteRequest, err))
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return string(body), nil
	}
	return extractText(obj), nil
}

func consumeStreaming(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
		if line == "[DONE]" {
			break
		}

		delta := line
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			delta = extractText(obj)
		}
		out.WriteString(delta)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read: %w", err)
	}
	return out.String(), nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "reply", "delta", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
