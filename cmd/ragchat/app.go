package main

import (
	"fmt"

	"github.com/kalambet/ragchat/internal/config"
	"github.com/kalambet/ragchat/internal/poll"
	"github.com/kalambet/ragchat/internal/rag"
	"github.com/kalambet/ragchat/internal/session"
	"github.com/kalambet/ragchat/internal/state"
)

// app holds the wired-up application pieces shared by the TUI. Everything
// hangs off this value; there are no package-level singletons.
type app struct {
	cfg        config.Config
	client     *rag.Client
	reconciler *state.Reconciler
	controller *session.Controller
	scheduler  *poll.Scheduler
}

// newApp loads config and builds the client, session controller and poll
// scheduler, wiring the controller's refresh hooks to the scheduler.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	client := rag.New(cfg.Server.BaseURL)
	client.SetTimeout(cfg.ChatTimeout())

	rec := state.NewReconciler()
	controller := session.NewController(client, rec, cfg.Server.UserID)
	scheduler := poll.NewScheduler(client, rec, controller.AdminEnabled,
		poll.WithInterval(cfg.PollInterval()))
	controller.SetRefreshHooks(scheduler.RefreshMLOps, scheduler.RefreshNow)

	return &app{
		cfg:        cfg,
		client:     client,
		reconciler: rec,
		controller: controller,
		scheduler:  scheduler,
	}, nil
}

// newClient builds just the service client, for the one-shot commands.
var newClient = func() (*rag.Client, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	client := rag.New(cfg.Server.BaseURL)
	client.SetTimeout(cfg.ChatTimeout())
	return client, cfg, nil
}
