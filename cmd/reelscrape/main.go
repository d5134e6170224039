package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	instagram "github.com/RavensCloud/reels-gofun"
	"github.com/RavensCloud/reels-gofun/internal/config"
	"github.com/RavensCloud/reels-gofun/internal/logging"
	"github.com/RavensCloud/reels-gofun/internal/reel"
	"github.com/RavensCloud/reels-gofun/internal/server"
	"github.com/RavensCloud/reels-gofun/internal/session"
	"github.com/RavensCloud/reels-gofun/internal/telemetry"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "reelscrape.json5", "Path to JSON5 config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	sessionFile := flag.String("session", "", "Path to session file (overrides config)")
	proxyURL := flag.String("proxy", "", "Proxy URL (http/https/socks5)")
	browserFallback := flag.Bool("browser-fallback", false, "Retry challenged logins in a headless browser")
	postURL := flag.String("url", "", "Scrape one post URL, print JSON and exit")
	login := flag.Bool("login", false, "Log in, save the session file and exit")
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "session":
			cfg.SessionFile = *sessionFile
		case "proxy":
			cfg.Proxy = *proxyURL
		case "browser-fallback":
			cfg.BrowserFallback = *browserFallback
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *postURL, *login); err != nil {
		logger.Error("reelscrape failed", "error", err)
		stop()
		logCloser.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, postURL string, login bool) error {
	tel, err := telemetry.Setup(ctx, telemetry.Config{Enabled: cfg.Tracing.Enabled, File: cfg.Tracing.File})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	client := instagram.New().
		WithRequestDelay(cfg.RequestDelayDuration()).
		WithBrowserFallback(cfg.BrowserFallback)
	defer client.Close()

	if cfg.Proxy != "" {
		if err := client.SetProxy(cfg.Proxy); err != nil {
			return fmt.Errorf("set proxy: %w", err)
		}
	}

	sessions := session.NewManager(cfg.SessionFile, session.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	}, logger)

	// Login mode: authenticate and save the session file.
	if login {
		if sessions.Exists() {
			fmt.Printf("Reusing cached session from %s\n", sessions.Path())
		}
		if err := sessions.EnsureAuthenticated(ctx, client); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		fmt.Printf("Logged in as %s (user id %s). Session saved to %s\n", cfg.Username, client.UserID(), sessions.Path())
		return nil
	}

	svc := reel.NewService(client, sessions, reel.WithTracer(tel.Tracer), reel.WithLogger(logger))

	// One-shot mode: scrape a single post.
	if postURL != "" {
		rec, err := svc.Scrape(ctx, postURL)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	gin.SetMode(gin.ReleaseMode)
	srv, err := server.New(svc, server.Config{
		Addr:           cfg.Addr,
		AllowedOrigins: cfg.AllowedOrigins,
		ReadTimeout:    cfg.ReadTimeoutDuration(),
		WriteTimeout:   cfg.WriteTimeoutDuration(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("reelscrape stopped cleanly")
	return nil
}
