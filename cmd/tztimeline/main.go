package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tztimeline/internal/app"
	"tztimeline/internal/capture"
	"tztimeline/internal/catalog"
	"tztimeline/internal/clock"
	"tztimeline/internal/config"
	appLog "tztimeline/internal/log"
	"tztimeline/internal/projector"
	"tztimeline/internal/store"
	"tztimeline/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	snapshot   bool
	debug      bool
}

func main() {
	flags := parseFlags()

	// .env must be read before the config so overrides apply.
	envErr := godotenv.Load(flags.envFile)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
		conf.StatePath = "./cache/state.yaml"
		conf.Snapshot.Output = "./cache/timeline.png"
	}

	appLog.SetProduction(conf.LogJSON)
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	defer appLog.Sync()

	appLog.Info("tztimeline starting", "version", version)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		appLog.Warn("failed to read env file", "path", flags.envFile, "err", envErr)
	}

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"state_path", conf.StatePath,
		"clock_cron", conf.ClockCron,
		"padding_fraction", conf.Projection.PaddingFraction,
		"now_window_minutes", conf.Projection.NowWindowMinutes,
		"business_override", len(conf.BusinessTimezones),
		"once", flags.once,
		"snapshot", flags.snapshot,
	)

	ticker, err := clock.NewTicker(clock.System, conf.ClockCron)
	if err != nil {
		appLog.Error("failed to create clock", err)
		os.Exit(1)
	}

	var business []string
	if len(conf.BusinessTimezones) > 0 {
		business = conf.BusinessTimezones
	}
	cat := catalog.New(catalog.Options{Business: business, Clock: ticker})
	if err := cat.ValidateIDs(business); err != nil {
		appLog.Warn("business timezones contain unknown ids", "err", err)
	}

	a := app.New(app.Options{
		Catalog: cat,
		Store:   store.New(conf.StatePath),
		Clock:   ticker,
		Projection: projector.Options{
			PaddingFraction: conf.Projection.PaddingFraction,
			NowHalfWindow:   time.Duration(conf.Projection.NowWindowMinutes) * time.Minute,
		},
		ReferenceZone: conf.Timezone,
	})

	if flags.once {
		if err := printTimeline(a); err != nil {
			appLog.Error("timeline failed", err)
			os.Exit(1)
		}
		return
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := web.NewServer(conf, a, nil)
	ticker.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if flags.snapshot {
		g.Go(func() error {
			defer cancel()
			return runSnapshot(gctx, srv, conf)
		})
	}

	if err := g.Wait(); err != nil {
		appLog.Error("tztimeline stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("tztimeline exiting")
}

// printTimeline writes the current projection as JSON to stdout.
func printTimeline(a *app.App) error {
	tl, err := a.Timeline()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tl)
}

// runSnapshot waits for the server, captures /timeline to the configured
// output and returns.
func runSnapshot(ctx context.Context, srv *web.Server, conf *config.Config) error {
	if err := waitHealthy(ctx, srv.SelfURL("/health"), 10*time.Second); err != nil {
		return err
	}
	opts := srv.CaptureOptions()
	if err := capture.WriteFile(ctx, capture.Chromium{}, opts, conf.Snapshot.Output); err != nil {
		return err
	}
	appLog.Info("snapshot written", "path", conf.Snapshot.Output)
	return nil
}

func waitHealthy(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server not ready at %s: %w", url, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/tztimeline/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Path to .env file with TZTIMELINE_* overrides")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print the current timeline as JSON and exit")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Capture /timeline to snapshot.output and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging; keep state under ./cache")

	flag.Parse()

	return cfg
}
