package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"rollcall/internal/capture"
	"rollcall/internal/config"
	"rollcall/internal/ics"
	appLog "rollcall/internal/log"
	"rollcall/internal/relay"
	"rollcall/internal/rollcall"
	"rollcall/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	envFile    string
	once       bool
}

func main() {
	flags := parseFlags()

	if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		appLog.Warn("env file not loaded", "path", flags.envFile, "cause", err)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"relays", len(conf.Relays),
		"refresh", conf.RefreshCron,
		"ics_count", len(conf.ICS),
		"signing", conf.SecretKey != "",
		"once", flags.once,
	)

	client, err := relay.NewClient(conf.Relays, conf.SecretKey)
	if err != nil {
		appLog.Error("failed to create relay client", err)
		os.Exit(1)
	}

	var pub relay.Publisher
	if client.PubKey() != "" {
		pub = client
		appLog.Info("publishing enabled", "pubkey", client.PubKey())
	}

	svc := rollcall.New(client, pub, rollcall.Options{
		LookupTimeout:   config.Ms(conf.Timeouts.LookupMs),
		CalendarTimeout: config.Ms(conf.Timeouts.CalendarMs),
		DetailsTimeout:  config.Ms(conf.Timeouts.DetailsMs),
		PublishTimeout:  config.Ms(conf.Timeouts.PublishMs),
		RetryCount:      conf.LookupRetry.Count,
		RetryDelay:      config.Ms(conf.LookupRetry.DelayMs),
		FrontendURL:     conf.FrontendURL,
		Location:        conf.Location(),
	})

	if len(conf.ICS) > 0 {
		sources := make([]ics.Source, 0, len(conf.ICS))
		for _, c := range conf.ICS {
			sources = append(sources, ics.Source{ID: c.ID, Name: c.Name, URL: c.URL, Owner: c.Owner})
		}
		fetcher := ics.NewFetcher(conf.CacheDir, config.Ms(conf.Timeouts.CalendarMs))
		horizon := time.Duration(conf.HorizonDays) * 24 * time.Hour
		svc.AddCalendarSource(ics.NewFeeds(fetcher, sources, horizon, 5*time.Minute))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flags.once {
		if err := dumpCalendar(ctx, svc); err != nil {
			appLog.Error("calendar listing failed", err)
			os.Exit(1)
		}
		return
	}

	var posters web.PosterRenderer
	if conf.FrontendURL != "" {
		posters = capture.NewPosters(capture.Options{FrontendURL: conf.FrontendURL})
	}

	if conf.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := web.NewServer(conf, svc, posters)

	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := sched.AddFunc(conf.RefreshCron, func() {
		rctx, rcancel := context.WithTimeout(ctx, time.Minute)
		defer rcancel()
		if err := srv.RefreshCalendar(rctx); err != nil {
			appLog.Error("scheduled calendar refresh failed", err)
		}
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	sched.Start()

	httpServer := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	go func() {
		if err := srv.RefreshCalendar(ctx); err != nil {
			appLog.Error("initial calendar refresh failed", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	stopped := sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	select {
	case <-stopped.Done():
	case <-shutdownCtx.Done():
	}
	appLog.Info("rollcall exiting")
}

// dumpCalendar prints the current calendar import listing as JSON.
func dumpCalendar(ctx context.Context, svc *rollcall.Service) error {
	entries, err := svc.CalendarImports(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/rollcall/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.envFile, "env", ".env", "Path to a dotenv file with secrets")
	flag.BoolVar(&cfg.once, "once", false, "Print the calendar import listing as JSON and exit")

	flag.Parse()

	return cfg
}
