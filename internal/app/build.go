package app

import (
	"fmt"

	"github.com/antoniostano/voicelink/internal/call"
	"github.com/antoniostano/voicelink/internal/config"
	"github.com/antoniostano/voicelink/internal/httpapi"
	"github.com/antoniostano/voicelink/internal/observability"
	"github.com/antoniostano/voicelink/internal/phone"
	"github.com/antoniostano/voicelink/internal/reply"
)

type ProviderInfo struct {
	Live       string
	LiveDetail string
	Reply      string
}

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Calls     *call.Manager
	Store     *phone.Store
	Messenger *phone.Messenger
	Metrics   *observability.Metrics
	Providers ProviderInfo

	// Cleanup ends running calls and waits for in-flight replies.
	Cleanup func() error
}

func Build(cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	liveSetup, err := resolveLiveDialer(cfg)
	if err != nil {
		return nil, err
	}

	replyCfg := reply.Config{
		Mode:    cfg.ReplyProvider,
		APIKey:  cfg.APIKey,
		Model:   cfg.ReplyModel,
		HTTPURL: cfg.ReplyHTTPURL,

		HTTPAttempts: cfg.ReplyHTTPAttempts,
	}
	generator, err := reply.NewGenerator(replyCfg)
	if err != nil {
		return nil, fmt.Errorf("reply generator init failed: %w", err)
	}

	calls := call.NewManager(liveSetup.dialer, call.Options{
		Model:      cfg.LiveModel,
		Voice:      cfg.LiveVoice,
		InputRate:  cfg.InputSampleRate,
		OutputRate: cfg.OutputSampleRate,
		Window:     cfg.CaptureWindow,
		DumpDir:    cfg.AudioDumpDir,

		IdleTimeout: cfg.CallIdleTimeout,
		Retention:   cfg.CallRetention,
	}, metrics)

	store := phone.NewStore(phone.DefaultContacts())
	messenger := phone.NewMessenger(store, generator, cfg.ReplyTimeout, metrics)

	providers := ProviderInfo{
		Live:       liveSetup.resolvedProvider,
		LiveDetail: liveSetup.detail,
		Reply:      reply.ResolveMode(replyCfg),
	}

	api := httpapi.New(cfg, httpapi.Services{
		Calls:         calls,
		Store:         store,
		Navigator:     phone.NewNavigator(),
		DialPad:       &phone.DialPad{},
		Messenger:     messenger,
		LiveProvider:  providers.Live,
		ReplyProvider: providers.Reply,
	}, metrics)

	cleanup := func() error {
		calls.Shutdown()
		messenger.Wait()
		return nil
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Calls:     calls,
		Store:     store,
		Messenger: messenger,
		Metrics:   metrics,
		Providers: providers,
		Cleanup:   cleanup,
	}, nil
}
