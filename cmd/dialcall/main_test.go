package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/antoniostano/voicelink/internal/app"
	"github.com/antoniostano/voicelink/internal/audio"
	"github.com/antoniostano/voicelink/internal/config"
)

func TestChunkPCMKeepsSampleAlignment(t *testing.T) {
	pcm := make([]byte, 1001)
	chunks := chunkPCM(pcm, 16000, 10) // 320 bytes per chunk
	if len(chunks) != 4 {
		t.Fatalf("len(chunks) = %d, want 4", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		if len(c)%2 != 0 {
			t.Fatalf("chunk of %d bytes splits a sample", len(c))
		}
		total += len(c)
	}
	if total != 1000 {
		t.Fatalf("total = %d, want 1000", total)
	}
}

func TestWSURLForCall(t *testing.T) {
	got, err := wsURLForCall("https://phone.example/base/", "abc")
	if err != nil {
		t.Fatalf("wsURLForCall() error = %v", err)
	}
	if want := "wss://phone.example/base/v1/calls/ws?call_id=abc"; got != want {
		t.Fatalf("wsURLForCall() = %q, want %q", got, want)
	}
	if _, err := wsURLForCall("ftp://x", "abc"); err == nil {
		t.Fatal("ftp scheme accepted")
	}
}

func TestLoadInputRejectsRateMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := audio.WriteWAVPCM16LEFile(path, make([]byte, 64), 8000); err != nil {
		t.Fatalf("WriteWAVPCM16LEFile() error = %v", err)
	}
	if _, err := loadInput(options{input: path}, 16000); err == nil {
		t.Fatal("8 kHz input accepted for a 16 kHz call")
	}
	pcm, err := loadInput(options{input: path}, 8000)
	if err != nil || len(pcm) != 64 {
		t.Fatalf("loadInput() = %d bytes, %v", len(pcm), err)
	}
}

func TestRunAgainstMockServer(t *testing.T) {
	built, err := app.Build(config.Config{
		MetricsNamespace: "test_dialcall_" + time.Now().Format("150405"),
		LiveProvider:     "mock",
		ReplyProvider:    "mock",
		InputSampleRate:  16000,
		OutputSampleRate: 24000,
		CaptureWindow:    256,
		MicTimeout:       2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	ts := httptest.NewServer(built.API.Router())
	defer ts.Close()
	defer built.Cleanup()

	out := filepath.Join(t.TempDir(), "playback.wav")
	cfg := options{
		baseURL:  ts.URL,
		number:   "001",
		name:     "Gemini Assistant",
		toneHz:   440,
		toneLen:  500 * time.Millisecond,
		chunkMS:  40,
		realtime: 10,
		hold:     300 * time.Millisecond,
		timeout:  10 * time.Second,
		output:   out,
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	res, err := run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if res.endReason != "hangup" {
		t.Fatalf("endReason = %q, want hangup", res.endReason)
	}
	// 8000 input samples make 31 capture windows, so the mock answers three times.
	if res.buffers != 3 {
		t.Fatalf("buffers = %d, want 3", res.buffers)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	pcm, rate, err := audio.DecodeWAVPCM16(data)
	if err != nil {
		t.Fatalf("DecodeWAVPCM16() error = %v", err)
	}
	if rate != 24000 || len(pcm) == 0 {
		t.Fatalf("output = %d bytes at %d Hz", len(pcm), rate)
	}
}
