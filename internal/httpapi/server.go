package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/voicelink/internal/call"
	"github.com/antoniostano/voicelink/internal/config"
	"github.com/antoniostano/voicelink/internal/observability"
	"github.com/antoniostano/voicelink/internal/phone"
	"github.com/antoniostano/voicelink/internal/protocol"
)

// Services groups the handset state the API exposes.
type Services struct {
	Calls     *call.Manager
	Store     *phone.Store
	Navigator *phone.Navigator
	DialPad   *phone.DialPad
	Messenger *phone.Messenger

	// Resolved provider names, reported by the status endpoints.
	LiveProvider  string
	ReplyProvider string
}

type Server struct {
	cfg      config.Config
	svc      Services
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, svc Services, metrics *observability.Metrics) *Server {
	if svc.Navigator == nil {
		svc.Navigator = phone.NewNavigator()
	}
	if svc.DialPad == nil {
		svc.DialPad = &phone.DialPad{}
	}
	return &Server{
		cfg:     cfg,
		svc:     svc,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the microphone unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)
	r.Get("/v1/settings", s.handleSettings)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Get("/v1/contacts", s.handleListContacts)
	r.Get("/v1/recents", s.handleListRecents)

	r.Get("/v1/screen", s.handleGetScreen)
	r.Post("/v1/screen", s.handleNavigate)

	r.Get("/v1/dialer", s.handleGetDialer)
	r.Post("/v1/dialer/keys", s.handlePressKeys)
	r.Delete("/v1/dialer/keys", s.handleBackspace)
	r.Post("/v1/dialer/call", s.handleDialerCall)

	r.Post("/v1/calls", s.handleCreateCall)
	r.Get("/v1/calls/ws", s.handleCallWS)
	r.Get("/v1/calls/{id}", s.handleGetCall)
	r.Post("/v1/calls/{id}/end", s.handleEndCall)
	r.Post("/v1/calls/{id}/mute", s.handleMuteCall)

	r.Get("/v1/threads", s.handleListThreads)
	r.Post("/v1/threads", s.handleOpenThread)
	r.Get("/v1/threads/{id}", s.handleGetThread)
	r.Delete("/v1/threads/{id}", s.handleDeleteThread)
	r.Post("/v1/threads/{id}/messages", s.handleSendMessage)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"live_provider":  s.svc.LiveProvider,
		"reply_provider": s.svc.ReplyProvider,
		"active_calls":   s.svc.Calls.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ready",
		"api_key_configured": s.cfg.APIKey != "",
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.CallState:
		return m.Type, true
	case protocol.AudioLevel:
		return m.Type, true
	case protocol.CallTimer:
		return m.Type, true
	case protocol.PlaybackScheduled:
		return m.Type, true
	case protocol.PlaybackStopped:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
