// Package reply produces the counterpart's answer to a chat message.
package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRemoteRequest = errors.New("reply request failed")
	ErrEmptyReply    = errors.New("reply was empty")
)

// Request is one outgoing chat message the counterpart should answer.
type Request struct {
	ThreadID    string `json:"thread_id,omitempty"`
	ContactName string `json:"contact_name"`
	Text        string `json:"text"`
}

// Generator answers a single message. Implementations make one remote request unless
// configured otherwise.
type Generator interface {
	Reply(ctx context.Context, req Request) (string, error)
}

type Config struct {
	Mode    string
	APIKey  string
	Model   string
	HTTPURL string

	// HTTPAttempts bounds requests per reply for the http provider.
	HTTPAttempts int
}

// ResolveMode turns "auto" into a concrete provider: the HTTP endpoint when one is set
// and no API key is, gemini otherwise.
func ResolveMode(cfg Config) string {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode != "" && mode != "auto" {
		return mode
	}
	if strings.TrimSpace(cfg.HTTPURL) != "" && strings.TrimSpace(cfg.APIKey) == "" {
		return "http"
	}
	// Without a key every reply fails and is logged; the chat itself keeps working.
	return "gemini"
}

func NewGenerator(cfg Config) (Generator, error) {
	switch ResolveMode(cfg) {
	case "gemini":
		return NewGemini(cfg.APIKey, cfg.Model), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("reply HTTP url is required for http mode")
		}
		return NewHTTPGenerator(cfg.HTTPURL, cfg.HTTPAttempts), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported reply provider %q", cfg.Mode)
	}
}

// Prompt is the user turn sent for a chat reply.
func Prompt(req Request) string {
	return fmt.Sprintf(
		"De gebruiker stuurde: \"%s\". Antwoord als %s in een kort SMS-bericht (maximaal 2 zinnen).",
		req.Text, req.ContactName,
	)
}

// SystemInstruction is the role the model plays for a thread.
func SystemInstruction(contactName string) string {
	return fmt.Sprintf(
		"Je bent een persoon in een chatgesprek genaamd %s. Reageer kort en bondig in het Nederlands, alsof je een SMS stuurt.",
		contactName,
	)
}

func normalizeReply(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
