package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"tools.zach/dev/jukeboxrpc/internal/bridge"
	"tools.zach/dev/jukeboxrpc/internal/config"
	"tools.zach/dev/jukeboxrpc/internal/logger"
	"tools.zach/dev/jukeboxrpc/internal/token"
	"tools.zach/dev/jukeboxrpc/internal/tray"
	"tools.zach/dev/jukeboxrpc/internal/tui"
)

// tokenEnv supplies the session token to headless runs.
const tokenEnv = "JUKEBOX_TOKEN"

// ///////////////////////////////////////////////
// Terminal UI
// ///////////////////////////////////////////////

// runTUI is the default surface. Logs go to the file only.
func runTUI(ctx context.Context, dataDir string) error {
	a, err := newApp(dataDir, resolveVersion(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.config()
	model := tui.New(a.ctl, tui.Options{
		Header:      cfg.Display.Header,
		Placeholder: cfg.Display.SecretInputPlaceholder,
		Token:       a.savedToken(),
		Missing:     cfg.Missing(),
		ConfigPath:  a.paths.Config(),
		InvalidText: cfg.Messages.ErrorText,
		OnEnabled:   a.rememberToken,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	a.onStatus(func(st bridge.Status) { p.Send(tui.StatusMsg(st)) })
	a.onConfig(func(cfg *config.Config) {
		p.Send(tui.ConfigMsg{
			Header:      cfg.Display.Header,
			Placeholder: cfg.Display.SecretInputPlaceholder,
			InvalidText: cfg.Messages.ErrorText,
			Missing:     cfg.Missing(),
		})
	})

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.watchConfig(gctx) })
	g.Go(func() error {
		return a.checkUpdates(gctx, func(latest, url string) {
			p.Send(tui.UpdateAvailableMsg{Latest: latest, URL: url})
		})
	})

	_, runErr := p.Run()
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal UI: %w", runErr)
	}
	return nil
}

// ///////////////////////////////////////////////
// Tray
// ///////////////////////////////////////////////

func newTrayCmd(flags *rootFlags) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "tray",
		Short: "Run from the system tray",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTray(cmd.Context(), flags.dataDir, live)
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "go live with the saved token on start")
	return cmd
}

// runTray blocks in the tray's event loop on the calling goroutine.
func runTray(ctx context.Context, dataDir string, live bool) error {
	a, err := newApp(dataDir, resolveVersion(), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.config()
	tr := tray.New(a.ctl, tray.Options{
		Title:     cfg.Display.Title,
		IconPath:  cfg.Display.ToggleButtonImage,
		Version:   a.version,
		Token:     a.savedToken,
		Missing:   func() []string { return a.config().Missing() },
		OnEnabled: a.rememberToken,
	})
	a.onStatus(tr.Update)
	a.onConfig(func(cfg *config.Config) { tr.SetTitle(cfg.Display.Title) })

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	tr.Run(func() {
		g.Go(func() error { return a.watchConfig(gctx) })
		g.Go(func() error {
			return a.checkUpdates(gctx, func(latest, url string) {
				slog.Info("update available", "latest", latest, "url", url)
			})
		})
		g.Go(func() error {
			<-gctx.Done()
			tr.Quit()
			return nil
		})
		if live {
			go goLiveSaved(gctx, a)
		}
	}, cancel)

	cancel()
	return g.Wait()
}

// goLiveSaved enables the bridge with the saved token, if there is one.
func goLiveSaved(ctx context.Context, a *app) {
	tok := a.savedToken()
	if tok == "" {
		slog.Info("no saved token, staying off")
		return
	}
	if missing := a.config().Missing(); len(missing) > 0 {
		slog.Warn("not going live, required settings missing", "keys", missing)
		return
	}
	if err := a.ctl.Enable(ctx, tok); err != nil {
		slog.Warn("going live at start failed", "error", err)
	}
}

// ///////////////////////////////////////////////
// Headless
// ///////////////////////////////////////////////

func newRunCmd(flags *rootFlags) *cobra.Command {
	var tok string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Go live without a UI until interrupted",
		Long: `Run connects immediately and keeps the presence in sync until it is
interrupted. The token comes from --token, then $` + tokenEnv + `, then the
saved token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHeadless(cmd.Context(), flags.dataDir, tok)
		},
	}
	cmd.Flags().StringVar(&tok, "token", "", "session token")
	return cmd
}

// runHeadless logs to stderr as well as the file. A failed connect is
// retried on the reconnect interval; an invalid token is fatal.
func runHeadless(ctx context.Context, dataDir, flagToken string) error {
	a, err := newApp(dataDir, resolveVersion(), appOptions{stderr: os.Stderr})
	if err != nil {
		return err
	}
	defer a.close()

	if missing := a.config().Missing(); len(missing) > 0 {
		return fmt.Errorf("set %s in %s", strings.Join(missing, " and "), a.paths.Config())
	}
	tok := pickToken(flagToken, os.Getenv(tokenEnv), a.savedToken())
	if err := token.Validate(tok); err != nil {
		return err
	}

	a.onStatus(func(st bridge.Status) {
		slog.Info("status", "state", st.State, "playing", st.NowPlaying, "error", st.LastError)
	})

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.watchConfig(gctx) })
	g.Go(func() error { return a.checkUpdates(gctx, nil) })
	g.Go(func() error {
		if err := enableWithRetry(gctx, a.ctl, tok, func() time.Duration {
			return a.config().ReconnectInterval()
		}); err != nil {
			return err
		}
		a.rememberToken(tok)
		return nil
	})

	<-gctx.Done()
	slog.Info("shutting down")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// pickToken returns the first non-empty candidate, trimmed.
func pickToken(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// enabler is the part of the controller enableWithRetry needs.
type enabler interface {
	Enable(ctx context.Context, tok string) error
}

// enableWithRetry calls Enable until it succeeds, ctx ends, or the token is
// rejected. interval is read before each wait so reloads take effect.
func enableWithRetry(ctx context.Context, ctl enabler, tok string, interval func() time.Duration) error {
	for attempt := 1; ; attempt++ {
		err := ctl.Enable(ctx, tok)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, token.ErrInvalid):
			logger.Fail(slog.Default(), "token rejected, not retrying", "error", err)
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}
		wait := interval()
		slog.Warn("going live failed, retrying", "attempt", attempt, "in", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
