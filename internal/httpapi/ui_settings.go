package httpapi

import "net/http"

type settingsResponse struct {
	LiveModel        string `json:"live_model"`
	LiveVoice        string `json:"live_voice"`
	ReplyModel       string `json:"reply_model"`
	InputSampleRate  int    `json:"input_sample_rate"`
	OutputSampleRate int    `json:"output_sample_rate"`
	CaptureWindow    int    `json:"capture_window"`
	MicTimeoutMS     int64  `json:"mic_timeout_ms"`
	RecordingEnabled bool   `json:"recording_enabled"`
}

// handleSettings tells device clients which audio format to capture and expect.
func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, settingsResponse{
		LiveModel:        s.cfg.LiveModel,
		LiveVoice:        s.cfg.LiveVoice,
		ReplyModel:       s.cfg.ReplyModel,
		InputSampleRate:  s.cfg.InputSampleRate,
		OutputSampleRate: s.cfg.OutputSampleRate,
		CaptureWindow:    s.cfg.CaptureWindow,
		MicTimeoutMS:     s.cfg.MicTimeout.Milliseconds(),
		RecordingEnabled: s.cfg.AudioDumpDir != "",
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotLatency())
}
