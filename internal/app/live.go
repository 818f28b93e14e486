package app

import (
	"fmt"
	"strings"

	"github.com/antoniostano/voicelink/internal/config"
	"github.com/antoniostano/voicelink/internal/live"
)

type liveSetup struct {
	dialer           live.Dialer
	resolvedProvider string
	detail           string
}

func resolveLiveDialer(cfg config.Config) (liveSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.LiveProvider))
	if mode == "" {
		mode = "auto"
	}

	gemini := func(detail string) liveSetup {
		return liveSetup{
			dialer:           live.NewGeminiDialer(cfg.APIKey),
			resolvedProvider: "gemini",
			detail:           detail,
		}
	}

	switch mode {
	case "gemini":
		return gemini("gemini live (sdk)"), nil
	case "ws":
		return liveSetup{
			dialer:           live.NewWSDialer(cfg.LiveWSURL, cfg.APIKey),
			resolvedProvider: "ws",
			detail:           "bidi websocket " + cfg.LiveWSURL,
		}, nil
	case "mock":
		return liveSetup{
			dialer:           live.NewMockDialer(cfg.OutputSampleRate),
			resolvedProvider: "mock",
			detail:           "mock (test tone)",
		}, nil
	case "auto":
		if strings.TrimSpace(cfg.APIKey) == "" {
			// Calls fail at connect time with a clear reason; the handset stays usable.
			return gemini("gemini live (sdk, API key missing)"), nil
		}
		return gemini("gemini live (sdk)"), nil
	default:
		return liveSetup{}, fmt.Errorf("invalid LIVE_PROVIDER: %q (expected auto|gemini|ws|mock)", cfg.LiveProvider)
	}
}
