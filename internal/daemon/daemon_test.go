package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agencykit/projectchat/internal/api"
	"github.com/agencykit/projectchat/internal/attach"
	"github.com/agencykit/projectchat/internal/bus"
	"github.com/agencykit/projectchat/internal/config"
	"github.com/agencykit/projectchat/internal/ingest"
	"github.com/agencykit/projectchat/internal/lock"
	"github.com/agencykit/projectchat/internal/metrics"
	"github.com/agencykit/projectchat/internal/presence"
	"github.com/agencykit/projectchat/internal/store"
	"github.com/agencykit/projectchat/internal/ws"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		ListenAddr: "127.0.0.1:0",
		DataDir:    dir,
		LogFile:    filepath.Join(dir, "chatd.log"),
	}
	cfg.Normalize()
	return cfg
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testConfig(t)
	p := Params{Config: cfg}
	logger := zap.NewNop()

	lk, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(cfg.DataDir, "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	m := metrics.New()
	b := bus.New()
	svc := ingest.NewService(db, attach.NewLinker(cfg.MaxAttachmentSize), b, logger, m)
	tracker := presence.NewTracker(b, cfg.TypingTTL(), logger, m)
	hub := ws.NewHub(b, logger, m)
	h := api.NewHandler(db, svc, tracker, hub, logger, m, api.Options{})

	srv, err := NewServer(p, h, logger)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	base := "http://" + srv.Addr()

	// Health check.
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}

	// Provision a project over the wire, post a message, read it back.
	resp, err = http.Post(base+"/projects", "application/json",
		strings.NewReader(`{"id":"p1","name":"Website"}`))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project status = %d, want 201", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, base+"/projects/p1/messages",
		strings.NewReader(`{"content":"hello","type":"TEXT"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sender-ID", "u1")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post message status = %d, want 201", resp.StatusCode)
	}

	resp, err = http.Get(base + "/projects/p1/messages")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var page struct {
		Messages []store.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 1 || page.Messages[0].Body != "hello" {
		t.Errorf("messages = %+v, want the posted message", page.Messages)
	}

	// Metrics endpoint serves the registry.
	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp.StatusCode)
	}
}

func TestServerStopIsGraceful(t *testing.T) {
	cfg := testConfig(t)
	logger := zap.NewNop()

	m := metrics.New()
	b := bus.New()
	db, err := store.Open(filepath.Join(cfg.DataDir, "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	svc := ingest.NewService(db, attach.NewLinker(cfg.MaxAttachmentSize), b, logger, m)
	tracker := presence.NewTracker(b, cfg.TypingTTL(), logger, m)
	h := api.NewHandler(db, svc, tracker, ws.NewHub(b, logger, m), logger, m, api.Options{})

	srv, err := NewServer(Params{Config: cfg}, h, logger)
	if err != nil {
		t.Fatal(err)
	}

	started := make(chan error, 1)
	go func() { started <- srv.Start() }()

	time.Sleep(50 * time.Millisecond)
	srv.Stop(context.Background())

	select {
	case err := <-started:
		if err != nil {
			t.Errorf("Start() returned %v after graceful stop", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}
