// sbrchat TUI - A terminal client for the statistics bureau assistant.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sbrchat-tui/internal/api"
	"github.com/jeranaias/sbrchat-tui/internal/config"
	"github.com/jeranaias/sbrchat-tui/internal/feedback"
	"github.com/jeranaias/sbrchat-tui/internal/i18n"
	"github.com/jeranaias/sbrchat-tui/internal/localstore"
	"github.com/jeranaias/sbrchat-tui/internal/store"
	"github.com/jeranaias/sbrchat-tui/internal/ui/chat"
	"github.com/jeranaias/sbrchat-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// tombstoneMaxAge bounds how long delete markers for vanished sessions
// are kept around.
const tombstoneMaxAge = 30 * 24 * time.Hour

func main() {
	var (
		showVersion = flag.Bool("version", false, "print version and exit")
		backendURL  = flag.String("backend", "", "assistant backend URL (overrides config)")
		locale      = flag.String("locale", "", "interface language: ru, kk or en (overrides config)")
		noStream    = flag.Bool("no-stream", false, "disable chunked streaming responses")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("sbrchat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*backendURL, *locale, *noStream); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(backendURL, localeFlag string, noStream bool) error {
	// Configuration: file, env overrides, then CLI flags on top.
	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: falling back to defaults: %v", err)
		cfg = config.Default()
	}
	if backendURL != "" {
		cfg.Backend.BaseURL = backendURL
	}
	if localeFlag != "" {
		cfg.UI.Locale = localeFlag
	}
	if noStream {
		cfg.Chat.Streaming = false
	}
	config.SetGlobal(cfg)

	// Local persistence: identity, verdicts, message id cache,
	// tombstones.
	local, err := localstore.Open("")
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer local.Close()

	ctx := context.Background()

	userID, err := local.UserID(ctx)
	if err != nil {
		return fmt.Errorf("resolving user id: %w", err)
	}
	if err := local.PruneTombstones(ctx, tombstoneMaxAge); err != nil {
		log.Printf("localstore: pruning tombstones: %v", err)
	}

	// Locale: flag and config override the stored choice; the winner is
	// persisted for the next run.
	localeCode := cfg.UI.Locale
	if localeCode == "" {
		if stored, err := local.Locale(ctx); err == nil && stored != "" {
			localeCode = stored
		}
	}
	activeLocale := i18n.Match(localeCode)
	i18n.SetActive(activeLocale)
	if err := local.SetLocale(ctx, string(activeLocale)); err != nil {
		log.Printf("localstore: persisting locale: %v", err)
	}

	client := api.NewClient(api.ClientConfig{
		BaseURL:  cfg.Backend.BaseURL,
		Timeout:  time.Duration(cfg.Backend.TimeoutSecs) * time.Second,
		UserID:   userID,
		Language: activeLocale.APICode(),
	})

	st := store.New(client, local, store.Config{
		Greeting:     i18n.T("chat.greeting"),
		HistoryLimit: cfg.Chat.HistoryLimit,
		StaleAfter:   time.Duration(cfg.Chat.StaleAfterDays) * 24 * time.Hour,
	})
	dispatcher := feedback.New(client, local, st, cfg.Chat.HistoryLimit)

	theme := styles.NewTheme(cfg.UI.Theme)
	m := chat.New(theme, st, client, local, dispatcher, cfg.Chat.Streaming)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Store mutations from stream goroutines wake the UI loop.
	st.SetOnChange(func() {
		p.Send(chat.StateChangedMsg{})
	})

	// Config edits apply live where they can.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		if err := config.Watch(watchCtx, nil); err != nil && watchCtx.Err() == nil {
			log.Printf("config: watcher stopped: %v", err)
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}
