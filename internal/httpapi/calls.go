package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicelink/internal/call"
	"github.com/antoniostano/voicelink/internal/device"
	"github.com/antoniostano/voicelink/internal/phone"
	"github.com/antoniostano/voicelink/internal/policy"
	"github.com/antoniostano/voicelink/internal/protocol"
)

type createCallRequest struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.startCall(w, req.Number, req.Name)
}

// handleDialerCall dials whatever is on the dial pad, naming it after a matching contact.
func (s *Server) handleDialerCall(w http.ResponseWriter, _ *http.Request) {
	number, err := s.svc.DialPad.Dial()
	if err != nil {
		respondError(w, http.StatusBadRequest, "number_required", err.Error())
		return
	}
	name := ""
	for _, c := range s.svc.Store.Contacts("") {
		if phone.DialString(c.Number) == number {
			name = c.Name
			break
		}
	}
	s.startCall(w, number, name)
}

func (s *Server) startCall(w http.ResponseWriter, number, name string) {
	c, err := s.svc.Calls.Dial(number, name)
	if err != nil {
		respondError(w, http.StatusBadRequest, "number_required", err.Error())
		return
	}
	s.svc.Store.RecordCall(c.Number, c.Name)
	s.svc.Navigator.StartCall(c.ID)
	s.metrics.CallEvent("dialed")
	log.Info().Str("call_id", c.ID).Str("number", policy.MaskNumber(c.Number)).Msg("call dialed")
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Calls.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Calls.End(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}
	s.svc.Navigator.EndCall(c.ID)
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleMuteCall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Muted bool `json:"muted"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	c, err := s.svc.Calls.SetMuted(chi.URLParam(r, "id"), req.Muted)
	switch {
	case errors.Is(err, call.ErrNotFound):
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	case errors.Is(err, call.ErrEnded):
		respondError(w, http.StatusConflict, "call_ended", err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "mute_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// handleCallWS attaches a device client to a dialed call. The client's microphone and
// speaker become the call's audio devices until the call ends or the socket closes.
func (s *Server) handleCallWS(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(r.URL.Query().Get("call_id"))
	if callID == "" {
		respondError(w, http.StatusBadRequest, "missing_call_id", "query parameter call_id is required")
		return
	}
	existing, err := s.svc.Calls.Get(callID)
	if err != nil {
		respondError(w, http.StatusNotFound, "call_not_found", err.Error())
		return
	}
	if existing.State == call.StateEnded {
		respondError(w, http.StatusConflict, "call_ended", "call has already ended")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.CallEvent("ws_connected")
	logger := log.With().Str("call_id", callID).Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	send := func(msg any) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case outbound <- msg:
			return nil
		}
	}
	// trySend never blocks the read loop; a saturated queue drops the message.
	trySend := func(msg any) {
		select {
		case outbound <- msg:
		default:
			logger.Debug().Msg("outbound queue full, dropping message")
		}
	}

	remote := device.NewRemote(callID, send, s.cfg.MicTimeout).WithMetrics(s.metrics)
	var readyOnce sync.Once
	hooks := call.Hooks{
		OnState: func(state call.State, reason error) {
			msg := protocol.CallState{Type: protocol.TypeCallState, CallID: callID, State: string(state)}
			if state == call.StateEnded {
				msg.Reason = call.ReasonCode(reason)
			}
			_ = send(msg)
			if state == call.StateActive {
				readyOnce.Do(func() {
					_ = send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, CallID: callID, Code: protocol.CodeCallReady})
				})
			}
		},
		OnLevel: func(level float64) {
			_ = send(protocol.AudioLevel{Type: protocol.TypeAudioLevel, CallID: callID, Level: level})
		},
		OnTick: func(elapsed time.Duration) {
			_ = send(protocol.CallTimer{Type: protocol.TypeCallTimer, CallID: callID, ElapsedS: int(elapsed / time.Second)})
		},
		OnEnd: func(error) {
			s.svc.Navigator.EndCall(callID)
		},
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		err := s.svc.Calls.Attach(ctx, callID, remote, hooks)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		code := call.ReasonCode(err)
		if errors.Is(err, call.ErrEnded) || errors.Is(err, call.ErrNotFound) {
			code = "call_unavailable"
		}
		trySend(protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			CallID: callID,
			Code:   code,
			Source: "call",
			Detail: policy.RedactError(err),
		})
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		write := func(msg any) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("websocket write failed")
				cancel()
				return false
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WSMessage("outbound", string(t))
			}
			return true
		}
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				if !write(msg) {
					return
				}
			case <-runDone:
				// The call is over: flush what is queued, then close the socket.
			flush:
				for {
					select {
					case msg := <-outbound:
						if !write(msg) {
							return
						}
					default:
						break flush
					}
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			trySend(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				CallID: callID,
				Code:   "invalid_client_message",
				Source: "gateway",
				Detail: err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessage("inbound", string(t))
		}
		if err := s.handleClientMessage(callID, remote, parsed); err != nil {
			trySend(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				CallID: callID,
				Code:   "client_message_rejected",
				Source: "gateway",
				Detail: err.Error(),
			})
		}
	}

	cancel()
	<-runDone
	<-writerDone
	s.metrics.CallEvent("ws_disconnected")
}

var errCallMismatch = errors.New("message belongs to a different call")

func (s *Server) handleClientMessage(callID string, remote *device.Remote, msg any) error {
	switch m := msg.(type) {
	case protocol.ClientAudioChunk:
		if m.CallID != callID {
			return errCallMismatch
		}
		return remote.PushAudio(m)
	case protocol.ClientControl:
		if m.CallID != callID {
			return errCallMismatch
		}
		switch m.Action {
		case protocol.ActionMicGranted:
			remote.AnswerMicrophone(true, "")
		case protocol.ActionMicDenied:
			remote.AnswerMicrophone(false, m.Reason)
		case protocol.ActionMute, protocol.ActionUnmute:
			_, err := s.svc.Calls.SetMuted(callID, m.Action == protocol.ActionMute)
			return err
		case protocol.ActionEnd:
			_, err := s.svc.Calls.End(callID)
			return err
		}
	}
	return nil
}
