package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/voicelink/internal/phone"
)

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"contacts": s.svc.Store.Contacts(r.URL.Query().Get("q")),
	})
}

func (s *Server) handleListRecents(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"calls": s.svc.Store.CallLogs()})
}

func (s *Server) handleGetScreen(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Navigator.View())
}

type navigateRequest struct {
	Screen phone.Screen `json:"screen"`
	Action string       `json:"action"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.EqualFold(req.Action, "back") {
		respondJSON(w, http.StatusOK, s.svc.Navigator.Back())
		return
	}
	view, err := s.svc.Navigator.Navigate(phone.Screen(strings.ToUpper(string(req.Screen))))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_screen", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetDialer(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"number": s.svc.DialPad.Number()})
}

func (s *Server) handlePressKeys(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys string `json:"keys"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	number, err := s.svc.DialPad.Press(req.Keys)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_key", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"number": number})
}

func (s *Server) handleBackspace(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"number": s.svc.DialPad.Backspace()})
}

func (s *Server) handleListThreads(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"threads": s.svc.Store.Threads()})
}

type openThreadRequest struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

func (s *Server) handleOpenThread(w http.ResponseWriter, r *http.Request) {
	var req openThreadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	thread, created, err := s.svc.Store.OpenThread(req.Number, req.Name)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_number", err.Error())
		return
	}
	s.svc.Navigator.OpenChat(thread.ID)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, thread)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	thread, err := s.svc.Store.Thread(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "thread_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, thread)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.Store.DeleteThread(id); err != nil {
		respondError(w, http.StatusNotFound, "thread_not_found", err.Error())
		return
	}
	s.svc.Navigator.ThreadDeleted(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	msg, err := s.svc.Messenger.Send(chi.URLParam(r, "id"), req.Text)
	switch {
	case errors.Is(err, phone.ErrThreadNotFound):
		respondError(w, http.StatusNotFound, "thread_not_found", err.Error())
		return
	case errors.Is(err, phone.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, "empty_message", err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "send_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, msg)
}
