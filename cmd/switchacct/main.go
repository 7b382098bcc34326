// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the switchacct command line tool. It extracts
// OAuth credentials from the host editor's state database, manages their
// lifecycle in the OS keyring, and switches the host's active identity
// between saved snapshots. The serve subcommand exposes the same
// operations on a loopback-only HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchAccount/internal/api/management"
	"github.com/traylinx/switchAccount/internal/config"
	"github.com/traylinx/switchAccount/internal/creds"
	"github.com/traylinx/switchAccount/internal/extract"
	"github.com/traylinx/switchAccount/internal/logging"
	"github.com/traylinx/switchAccount/internal/registry"
	"github.com/traylinx/switchAccount/internal/secretstore"
	"github.com/traylinx/switchAccount/internal/snapshot"
	"github.com/traylinx/switchAccount/internal/statestore"
	"github.com/traylinx/switchAccount/internal/util"
	"github.com/traylinx/switchAccount/internal/watcher"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.Setup()
}

const usageText = `switchacct manages host editor accounts.

Usage:
  switchacct [flags] <command> [args]

Commands:
  capture [email]      extract the active identity's credentials and store them
  token <email>        print the best available access token for an account
  save                 snapshot the host's current identity
  switch <email>       restore a saved identity snapshot into the host
  list                 list registered accounts and saved snapshots
  remove <email>       delete an account's stored credentials and snapshot
  serve                run the local management API
  version              print build information

Flags:
  -config <path>       config file (default ~/.switchaccount/config.yaml)
  -debug               enable debug logging
`

// app bundles the wired services behind the subcommands.
type app struct {
	cfg       *config.Config
	sb        *util.StateBox
	creds     *creds.Service
	snapshots *snapshot.Manager
	accounts  *registry.Registry
}

func main() {
	configPath := flag.String("config", "", "config file path")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	// .env is optional; client credentials usually live there.
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded environment from .env")
	}

	sb, err := util.NewStateBox()
	if err != nil {
		log.WithError(err).Fatal("failed to prepare state directory")
	}

	path := *configPath
	if path == "" {
		path = sb.ResolvePath("config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if *debug {
		cfg.Debug = true
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if err := logging.ConfigureOutput(sb, cfg.LoggingToFile); err != nil {
		log.WithError(err).Fatal("failed to configure log output")
	}

	a := newApp(cfg, sb)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.WithError(err).Fatal(flag.Arg(0) + " failed")
	}
}

// newApp wires the service graph from configuration.
func newApp(cfg *config.Config, sb *util.StateBox) *app {
	state := statestore.NewSQLiteStore(cfg.StateDBPath)
	secrets := secretstore.NewKeyring(cfg.KeyringService)
	keys := extract.Keys{
		Status:    cfg.StatusKey,
		TokenBlob: cfg.TokenBlobKey,
		Identity:  cfg.IdentityKey,
	}
	pipeline := extract.NewPipeline(state, keys)

	tokenURL := cfg.OAuth.TokenURL
	if tokenURL == "" {
		tokenURL = creds.DefaultTokenURL
	}
	refresher := creds.NewOAuthRefresher(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, tokenURL)

	svc := creds.NewService(secrets, pipeline, refresher, &creds.Options{
		Skew:         cfg.Skew(),
		RecoveredTTL: cfg.RecoveredTTL(),
	})

	return &app{
		cfg:       cfg,
		sb:        sb,
		creds:     svc,
		snapshots: snapshot.NewManager(state, secrets, cfg.IdentityKey),
		accounts:  registry.New(sb),
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "capture":
		email := ""
		if len(args) > 0 {
			email = args[0]
		}
		return a.capture(ctx, email)
	case "token":
		if len(args) != 1 {
			return fmt.Errorf("usage: switchacct token <email>")
		}
		return a.token(ctx, args[0])
	case "save":
		return a.save(ctx)
	case "switch":
		if len(args) != 1 {
			return fmt.Errorf("usage: switchacct switch <email>")
		}
		return a.switchTo(ctx, args[0])
	case "list":
		return a.list()
	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("usage: switchacct remove <email>")
		}
		return a.remove(args[0])
	case "serve":
		return a.serve(ctx)
	case "version":
		fmt.Printf("switchacct %s (%s, built %s)\n", Version, Commit, BuildDate)
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// capture extracts the active identity and registers the account. It
// also snapshots the current identity so the account can be switched
// back to later.
func (a *app) capture(ctx context.Context, email string) error {
	acc, err := a.creds.Capture(ctx, email)
	if err != nil {
		return err
	}
	if _, err := a.accounts.Add(acc.Email, ""); err != nil {
		log.WithError(err).Warn("captured credentials but failed to register account")
	}
	if _, err := a.snapshots.Save(ctx); err != nil {
		log.WithError(err).Debug("no identity snapshot taken during capture")
	}
	fmt.Printf("captured %s (expires %s)\n", acc.Email, acc.ExpiresAt.Format("15:04:05"))
	return nil
}

func (a *app) token(ctx context.Context, email string) error {
	token, err := a.creds.GetToken(ctx, email)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func (a *app) save(ctx context.Context) error {
	snap, err := a.snapshots.Save(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("saved identity snapshot for %s\n", snap.Email)
	return nil
}

func (a *app) switchTo(ctx context.Context, email string) error {
	if err := a.snapshots.SwitchTo(ctx, email); err != nil {
		return err
	}
	if err := a.accounts.SetActive(email); err != nil && err != registry.ErrNotRegistered {
		log.WithError(err).Warn("switched identity but failed to update registry")
	}
	fmt.Printf("switched host identity to %s; restart the host app to pick it up\n", email)
	return nil
}

func (a *app) list() error {
	entries, err := a.accounts.List()
	if err != nil {
		return err
	}
	snaps, err := a.snapshots.List()
	if err != nil {
		return err
	}
	snapshotted := make(map[string]bool, len(snaps))
	for _, s := range snaps {
		snapshotted[s.Email] = true
	}

	if len(entries) == 0 && len(snaps) == 0 {
		fmt.Println("no accounts; run 'switchacct capture' while logged in")
		return nil
	}
	for _, e := range entries {
		marks := []string{string(a.creds.StateOf(e.Email))}
		if e.Active {
			marks = append(marks, "active")
		}
		if snapshotted[e.Email] {
			marks = append(marks, "snapshot")
			delete(snapshotted, e.Email)
		}
		fmt.Printf("%-40s %s\n", e.Email, strings.Join(marks, ", "))
	}
	// Snapshots for accounts that were never registered, the sentinel
	// identity included.
	for _, s := range snaps {
		if snapshotted[s.Email] {
			fmt.Printf("%-40s snapshot only\n", s.Email)
		}
	}
	return nil
}

func (a *app) remove(email string) error {
	if err := a.creds.Delete(email); err != nil {
		log.WithError(err).Debug("no stored credential to delete")
	}
	if err := a.snapshots.Delete(email); err != nil {
		log.WithError(err).Debug("no snapshot to delete")
	}
	if err := a.accounts.Remove(email); err != nil && err != registry.ErrNotRegistered {
		return err
	}
	fmt.Printf("removed %s\n", email)
	return nil
}

// serve runs the loopback management API until the context is cancelled.
// With watch-state-db enabled it re-captures credentials whenever the
// host rewrites its state database.
func (a *app) serve(ctx context.Context) error {
	if !a.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	management.NewHandler(a.creds, a.snapshots, a.accounts).Register(engine)

	if a.cfg.WatchStateDB {
		w, err := watcher.New(a.cfg.StateDBPath, func() {
			if _, err := a.creds.Capture(context.Background(), ""); err != nil {
				log.WithError(err).Debug("state database changed but no credentials captured")
			}
		})
		if err != nil {
			log.WithError(err).Warn("state database watcher unavailable")
		} else {
			defer w.Stop()
		}
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	log.WithField("addr", addr).Info("management API listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- engine.Run(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
