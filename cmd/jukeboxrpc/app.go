package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	rootpkg "tools.zach/dev/jukeboxrpc"
	"tools.zach/dev/jukeboxrpc/internal/autostart"
	"tools.zach/dev/jukeboxrpc/internal/bridge"
	"tools.zach/dev/jukeboxrpc/internal/config"
	"tools.zach/dev/jukeboxrpc/internal/discord"
	"tools.zach/dev/jukeboxrpc/internal/logger"
	"tools.zach/dev/jukeboxrpc/internal/remote"
	"tools.zach/dev/jukeboxrpc/internal/stream"
	"tools.zach/dev/jukeboxrpc/internal/token"
	"tools.zach/dev/jukeboxrpc/internal/update"
	"tools.zach/dev/jukeboxrpc/internal/watch"
)

// autostartArgs is the command line registered to run at login.
var autostartArgs = []string{"tray", "--live"}

// ///////////////////////////////////////////////
// App
// ///////////////////////////////////////////////

// app holds everything one running host surface shares: the loaded config,
// the log level, the token store and the bridge controller.
type app struct {
	paths   DataPaths
	version string
	level   *slog.LevelVar
	store   *token.Store
	ctl     *bridge.Controller

	mu  sync.Mutex
	cfg *config.Config

	statusFns []func(bridge.Status)
	configFns []func(*config.Config)

	closers []func()
}

// appOptions tweaks [newApp] for each host surface.
type appOptions struct {
	// stderr receives a copy of the log when set.
	stderr io.Writer
}

// newApp takes the instance lock, loads config and logging, and builds the
// controller. Call close when done, even after an error-free Run.
func newApp(dataDir, version string, opts appOptions) (*app, error) {
	a := &app{
		paths:   DataPaths{Root: dataDir},
		version: version,
		level:   new(slog.LevelVar),
	}

	if err := os.MkdirAll(a.paths.Root, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	release, err := acquireInstance(a.paths)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, release)

	if wrote, err := config.WriteDefault(a.paths.Root, rootpkg.DefaultConfigTOML); err != nil {
		fmt.Fprintf(os.Stderr, "warning: write default config: %v\n", err)
	} else if wrote {
		fmt.Fprintf(os.Stderr, "wrote default config to %s\n", a.paths.Config())
	}

	cfg, err := config.Load(a.paths.Root)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	a.level.Set(logger.ParseLevel(cfg.Log.Level))
	log, logCloser := logger.New(logger.Options{
		Path:      a.paths.Log(),
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Level:     a.level,
		Stderr:    opts.stderr,
	})
	prev := slog.Default()
	slog.SetDefault(log)
	a.closers = append(a.closers, func() {
		slog.SetDefault(prev)
		logCloser.Close()
	})

	slog.Info("jukeboxrpc starting", "version", version, "data_dir", a.paths.Root)
	if missing := cfg.Missing(); len(missing) > 0 {
		slog.Warn("required settings missing", "keys", missing, "config", a.paths.Config())
	}

	a.store = token.NewStore(a.paths.Token())

	ctlOpts := []bridge.Option{bridge.WithObserver(a.publishStatus)}
	if mgr, err := autostart.ForCurrentExecutable(autostartArgs...); err != nil {
		slog.Warn("autostart unavailable", "error", err)
	} else {
		ctlOpts = append(ctlOpts, bridge.WithAutostart(mgr))
	}

	presence := discord.NewClient()
	strm := stream.NewClient(
		stream.WithWatchdogInterval(cfg.WatchdogInterval()),
		stream.WithPingInterval(cfg.PingInterval()),
	)
	a.ctl = bridge.New(bridgeSettings(cfg), presence, strm, ctlOpts...)
	a.closers = append(a.closers, a.ctl.Shutdown)

	return a, nil
}

// close stops the controller, forgets the token unless it should be
// remembered, then releases logging and the instance lock.
func (a *app) close() {
	if a.ctl != nil && !a.config().Behavior.RememberToken {
		if err := a.store.Clear(); err != nil {
			slog.Warn("clearing saved token", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// config returns the current configuration. Treat it as read-only.
func (a *app) config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// onStatus registers fn for controller snapshots.
func (a *app) onStatus(fn func(bridge.Status)) {
	a.mu.Lock()
	a.statusFns = append(a.statusFns, fn)
	a.mu.Unlock()
}

// onConfig registers fn for successful config reloads.
func (a *app) onConfig(fn func(*config.Config)) {
	a.mu.Lock()
	a.configFns = append(a.configFns, fn)
	a.mu.Unlock()
}

func (a *app) publishStatus(st bridge.Status) {
	a.mu.Lock()
	fns := a.statusFns
	a.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// ///////////////////////////////////////////////
// Token
// ///////////////////////////////////////////////

// savedToken returns the remembered token, or "".
func (a *app) savedToken() string {
	tok, err := a.store.Load()
	if err != nil {
		slog.Warn("reading saved token", "error", err)
		return ""
	}
	return tok
}

// rememberToken stores tok after a successful go-live when enabled.
func (a *app) rememberToken(tok string) {
	if !a.config().Behavior.RememberToken {
		return
	}
	if err := a.store.Save(tok); err != nil {
		slog.Warn("saving token", "error", err)
	}
}

// ///////////////////////////////////////////////
// Background Tasks
// ///////////////////////////////////////////////

// watchConfig reloads config.toml whenever it changes until ctx ends. A
// file that fails to load or validate is logged and the previous config
// stays in effect.
func (a *app) watchConfig(ctx context.Context) error {
	w, err := watch.New(a.paths.Config())
	if err != nil {
		slog.Warn("config watch unavailable", "error", err)
		return nil
	}
	defer w.Close()
	if w.Polling() {
		slog.Info("watching config by polling", "path", a.paths.Config())
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Events():
			a.reload()
		}
	}
}

// reload applies a fresh config.toml. Stream timings apply to the next run.
func (a *app) reload() {
	cfg, err := config.Load(a.paths.Root)
	if err != nil {
		slog.Warn("config reload rejected, keeping previous", "error", err)
		return
	}

	a.mu.Lock()
	a.cfg = cfg
	fns := a.configFns
	a.mu.Unlock()

	a.level.Set(logger.ParseLevel(cfg.Log.Level))
	a.ctl.UpdateSettings(bridgeSettings(cfg))
	for _, fn := range fns {
		fn(cfg)
	}
	slog.Info("config reloaded")
}

// checkUpdates runs one release check when enabled and calls notify if a
// newer version exists.
func (a *app) checkUpdates(ctx context.Context, notify func(latest, url string)) error {
	if !a.config().Behavior.CheckUpdates {
		return nil
	}
	res := update.NewChecker().Log(ctx, a.version)
	if res.Newer && notify != nil {
		notify(res.Latest, remote.Detect().ReleasesURL())
	}
	return nil
}

// ///////////////////////////////////////////////
// Settings Mapping
// ///////////////////////////////////////////////

// bridgeSettings maps the file config onto the controller's settings.
func bridgeSettings(cfg *config.Config) bridge.Settings {
	return bridge.Settings{
		ClientID:       cfg.Discord.ClientID,
		EndpointBase:   cfg.Stream.WebSocketURL,
		IdleText:       cfg.Display.IdleText,
		DetailsFormat:  cfg.Display.PlayingDetails,
		StateFormat:    cfg.Display.PlayingState,
		LargeImageKey:  cfg.Display.Assets.LargeImageKey,
		LargeImageText: cfg.Display.Assets.LargeImageText,
		ButtonLabel:    cfg.Display.ButtonLabel,
		Messages: bridge.Messages{
			InvalidToken:  cfg.Messages.ErrorText,
			RPCError:      cfg.Messages.RPCError,
			SocketFailure: cfg.Messages.SocketFailure,
			SocketClosed:  cfg.Messages.SocketClosed,
		},
		ReconnectInterval: cfg.ReconnectInterval(),
		IgnoreURLs:        cfg.Privacy.IgnoreURLs,
		IgnoreChannels:    cfg.Privacy.IgnoreChannels,
	}
}
