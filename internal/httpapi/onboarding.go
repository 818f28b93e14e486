package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	LiveProvider  string            `json:"live_provider"`
	ReplyProvider string            `json:"reply_provider"`
	Checks        []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	checks := make([]onboardingCheck, 0, 8)
	checks = append(checks, s.liveChecks()...)
	checks = append(checks, s.replyChecks()...)
	checks = append(checks, s.audioChecks()...)
	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		LiveProvider:  s.svc.LiveProvider,
		ReplyProvider: s.svc.ReplyProvider,
		Checks:        checks,
	})
}

func (s *Server) apiKeyCheck(id, label, fix string) onboardingCheck {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return onboardingCheck{
			ID:     id,
			Status: "error",
			Label:  label,
			Detail: "API_KEY is not set",
			Fix:    fix,
		}
	}
	return onboardingCheck{ID: id, Status: "ok", Label: label, Detail: "present"}
}

func (s *Server) liveChecks() []onboardingCheck {
	out := []onboardingCheck{{
		ID:     "live_provider",
		Status: "ok",
		Label:  "Voice call backend",
		Detail: s.svc.LiveProvider,
	}}
	switch s.svc.LiveProvider {
	case "gemini":
		out = append(out, s.apiKeyCheck("live_api_key", "Live API key",
			"Set API_KEY (or GEMINI_API_KEY), or LIVE_PROVIDER=mock for offline calls."))
	case "ws":
		out = append(out, s.apiKeyCheck("live_api_key", "Live API key",
			"Set API_KEY, or point LIVE_WS_URL at a relay that needs no key."))
		if err := probeURL(s.cfg.LiveWSURL); err != nil {
			out = append(out, onboardingCheck{
				ID:     "live_endpoint",
				Status: "warn",
				Label:  "Live websocket endpoint",
				Detail: err.Error(),
				Fix:    "Check LIVE_WS_URL and network access.",
			})
		} else {
			out = append(out, onboardingCheck{
				ID:     "live_endpoint",
				Status: "ok",
				Label:  "Live websocket endpoint",
				Detail: "reachable",
			})
		}
	case "mock":
		out = append(out, onboardingCheck{
			ID:     "mock_live",
			Status: "warn",
			Label:  "Voice call backend is mock",
			Detail: "Calls answer with a test tone.",
			Fix:    "Set API_KEY and LIVE_PROVIDER=gemini for real conversations.",
		})
	}
	return out
}

func (s *Server) replyChecks() []onboardingCheck {
	out := []onboardingCheck{{
		ID:     "reply_provider",
		Status: "ok",
		Label:  "Message reply backend",
		Detail: s.svc.ReplyProvider,
	}}
	switch s.svc.ReplyProvider {
	case "gemini":
		out = append(out, s.apiKeyCheck("reply_api_key", "Reply API key",
			"Set API_KEY, or REPLY_HTTP_URL to use a local reply service."))
	case "http":
		if err := probeURL(s.cfg.ReplyHTTPURL); err != nil {
			out = append(out, onboardingCheck{
				ID:     "reply_endpoint",
				Status: "error",
				Label:  "Reply HTTP endpoint",
				Detail: err.Error(),
				Fix:    "Start the reply service or fix REPLY_HTTP_URL.",
			})
		} else {
			out = append(out, onboardingCheck{
				ID:     "reply_endpoint",
				Status: "ok",
				Label:  "Reply HTTP endpoint",
				Detail: "reachable",
			})
		}
	case "mock":
		out = append(out, onboardingCheck{
			ID:     "mock_reply",
			Status: "warn",
			Label:  "Message reply backend is mock",
			Detail: "Replies echo the sent text.",
		})
	}
	return out
}

func (s *Server) audioChecks() []onboardingCheck {
	out := make([]onboardingCheck, 0, 2)
	out = append(out, onboardingCheck{
		ID:     "audio_format",
		Status: "ok",
		Label:  "Audio format",
		Detail: fmt.Sprintf("capture %d Hz, playback %d Hz, window %d samples",
			s.cfg.InputSampleRate, s.cfg.OutputSampleRate, s.cfg.CaptureWindow),
	})
	dir := strings.TrimSpace(s.cfg.AudioDumpDir)
	if dir == "" {
		return out
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		out = append(out, onboardingCheck{
			ID:     "audio_dump_dir",
			Status: "ok",
			Label:  "Call recordings",
			Detail: dir,
		})
	case err == nil:
		out = append(out, onboardingCheck{
			ID:     "audio_dump_dir",
			Status: "error",
			Label:  "Call recordings",
			Detail: dir + " is not a directory",
			Fix:    "Point CALL_AUDIO_DUMP_DIR at a directory.",
		})
	default:
		out = append(out, onboardingCheck{
			ID:     "audio_dump_dir",
			Status: "warn",
			Label:  "Call recordings",
			Detail: err.Error(),
			Fix:    "The directory is created on the first recorded call.",
		})
	}
	return out
}

// probeURL checks that the host behind raw accepts TCP connections.
func probeURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("host missing")
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https", "wss":
			port = "443"
		default:
			port = "80"
		}
	}
	c, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), 250*time.Millisecond)
	if err != nil {
		return err
	}
	return c.Close()
}
