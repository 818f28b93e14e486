package live

import (
	"encoding/base64"
	"strings"
)

// JSON shapes of the BidiGenerateContent websocket protocol, limited to what a voice
// call uses.

type wireSetupMessage struct {
	Setup wireSetup `json:"setup"`
}

type wireSetup struct {
	Model             string               `json:"model"`
	GenerationConfig  wireGenerationConfig `json:"generationConfig"`
	SystemInstruction *wireContent         `json:"systemInstruction,omitempty"`
}

type wireGenerationConfig struct {
	ResponseModalities []string          `json:"responseModalities"`
	SpeechConfig       *wireSpeechConfig `json:"speechConfig,omitempty"`
}

type wireSpeechConfig struct {
	VoiceConfig wireVoiceConfig `json:"voiceConfig"`
}

type wireVoiceConfig struct {
	PrebuiltVoiceConfig wirePrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type wirePrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string    `json:"text,omitempty"`
	InlineData *wireBlob `json:"inlineData,omitempty"`
}

type wireBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireRealtimeInputMessage struct {
	RealtimeInput wireRealtimeInput `json:"realtimeInput"`
}

type wireRealtimeInput struct {
	Audio wireBlob `json:"audio"`
}

type wireServerMessage struct {
	SetupComplete *struct{}          `json:"setupComplete,omitempty"`
	ServerContent *wireServerContent `json:"serverContent,omitempty"`
}

type wireServerContent struct {
	ModelTurn    *wireContent `json:"modelTurn,omitempty"`
	Interrupted  bool         `json:"interrupted,omitempty"`
	TurnComplete bool         `json:"turnComplete,omitempty"`
}

func newWireSetup(cfg Config) wireSetupMessage {
	model := strings.TrimSpace(cfg.Model)
	if model != "" && !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	modality := cfg.Modality
	if modality == "" {
		modality = ModalityAudio
	}
	msg := wireSetupMessage{Setup: wireSetup{
		Model: model,
		GenerationConfig: wireGenerationConfig{
			ResponseModalities: []string{modality},
		},
	}}
	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &wireSpeechConfig{
			VoiceConfig: wireVoiceConfig{PrebuiltVoiceConfig: wirePrebuiltVoice{VoiceName: cfg.Voice}},
		}
	}
	if cfg.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &wireContent{Parts: []wirePart{{Text: cfg.SystemInstruction}}}
	}
	return msg
}

// toMessage converts a server frame; it returns nil for frames that carry neither audio
// nor turn signals (setupComplete, transcriptions, usage metadata).
func (w wireServerMessage) toMessage() (*Message, error) {
	sc := w.ServerContent
	if sc == nil {
		return nil, nil
	}
	msg := &Message{Interrupted: sc.Interrupted, TurnComplete: sc.TurnComplete}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" || !isAudioMIME(part.InlineData.MIMEType) {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, err
			}
			msg.Audio = append(msg.Audio, pcm)
		}
	}
	if !msg.HasAudio() && !msg.Interrupted && !msg.TurnComplete {
		return nil, nil
	}
	return msg, nil
}

func isAudioMIME(mime string) bool {
	mime = strings.TrimSpace(strings.ToLower(mime))
	return mime == "" || strings.HasPrefix(mime, "audio/")
}
