package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fillmgr/fillmgr/internal/config"
	"github.com/fillmgr/fillmgr/internal/daemon"
	"github.com/fillmgr/fillmgr/internal/fieldtree"
	"github.com/fillmgr/fillmgr/internal/history"
	"github.com/fillmgr/fillmgr/internal/model"
	"github.com/fillmgr/fillmgr/internal/session"
)

func main() {
	configPath := flag.String("config", "", "YAML config path")
	socketPath := flag.String("socket", "", "UDS path for fillmgrd")
	dbPath := flag.String("db", "", "SQLite path for the session request history")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := history.Open(ctx, cfg.DBPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close() //nolint:errcheck
	if err := store.Migrate(ctx); err != nil {
		fatal(err)
	}

	registry := session.NewRegistry(session.RegistryConfig{
		ProviderID:    cfg.ProviderID,
		ProviderLabel: cfg.ProviderLabel,
		UserID:        cfg.UserID,
		Enabled:       cfg.Enabled,
		Presenter:     noopPresenter{},
		Capturer:      noopCapturer{},
		Providers:     unboundProviderFactory,
		History:       history.NewLog(cfg.HistorySize),
		Recorder:      store,
	})
	defer registry.Destroy()

	srv := daemon.NewServer(cfg, registry, store)
	if err := srv.Start(ctx); err != nil && err != context.Canceled {
		fatal(err)
	}
}

// unboundProviderFactory stands in until a platform bridge binds a real
// provider transport. Every fill request fails fast so the session ends
// instead of hanging.
func unboundProviderFactory(cb session.ProviderCallbacks) session.ProviderTransport {
	return &unboundProvider{cb: cb}
}

type unboundProvider struct {
	cb session.ProviderCallbacks
}

func (p *unboundProvider) RequestFill(_ *fieldtree.Tree, _ map[string]string, _ model.UpdateFlags) {
	p.cb.OnFillRequestFailure("autofill provider transport not bound")
}

func (p *unboundProvider) RequestSave(_ *fieldtree.Tree, _ map[string]string) {
	p.cb.OnSaveRequestFailure("autofill provider transport not bound")
}

func (p *unboundProvider) Destroy() {}

type noopPresenter struct{}

func (noopPresenter) ShowSuggestions(id model.FieldID, _ *model.FillResponse, _, _ string) {
	log.Printf("fillmgrd: no presenter bound, dropping suggestions for field %s", id)
}
func (noopPresenter) HideSuggestions(model.FieldID)                  {}
func (noopPresenter) FilterSuggestions(*string)                      {}
func (noopPresenter) ShowSaveDialog(string, *model.SaveSpec, string) {}
func (noopPresenter) ShowError(msg string)                           { log.Printf("fillmgrd: %s", msg) }
func (noopPresenter) SetCallback(session.PresenterCallbacks)         {}

type noopCapturer struct{}

func (noopCapturer) RequestCapture(token string) error {
	return fmt.Errorf("field tree capture transport not bound for token %s", token)
}

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "fillmgrd: %v\n", err)
	os.Exit(1)
}
