package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/firstday-app/firstday/internal/config"
	"github.com/firstday-app/firstday/internal/gateway"
	"github.com/firstday-app/firstday/internal/gateway/gemini"
	"github.com/firstday-app/firstday/internal/gateway/yandexgpt"
	"github.com/firstday-app/firstday/internal/prompt"
	"github.com/firstday-app/firstday/internal/roles"
	"github.com/firstday-app/firstday/internal/session"
	"github.com/firstday-app/firstday/internal/storage"
	"github.com/firstday-app/firstday/internal/web"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Version = "dev"

var buildInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "firstday",
		Name:      "build_info",
		Help:      "Build information with version and Go runtime details",
	},
	[]string{"version", "go_version"},
)

func init() {
	buildInfo.WithLabelValues(Version, runtime.Version()).Set(1)
}

func runHealthcheck(configPath string) int {
	// Config load failures fall back to env/default port: the app may be
	// running with env vars only.
	cfg, err := config.Load(configPath)
	port := "8080"
	if err == nil && cfg.Server.ListenPort != "" {
		port = cfg.Server.ListenPort
	} else {
		if envPort := os.Getenv("FIRSTDAY_SERVER_PORT"); envPort != "" {
			port = envPort
		}
	}

	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{
		Timeout: 5 * time.Second,
	}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Healthcheck failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Healthcheck returned status: %d\n", resp.StatusCode)
		return 1
	}
	return 0
}

func main() {
	// Set up JSON logging early (before config load) with default INFO level.
	// Will be reconfigured with correct level after config is loaded.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found or failed to load, relying on environment variables")
	}

	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	healthcheck := flag.Bool("healthcheck", false, "run healthcheck and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("firstday", Version)
		os.Exit(0)
	}

	if *healthcheck {
		os.Exit(runHealthcheck(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		slog.Warn("unknown log level, defaulting to info", "level", cfg.Log.Level)
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	logger.Info("Config loaded successfully", "provider", cfg.Gateway.Provider, "model", cfg.Gateway.Model)

	store, err := storage.NewSQLiteStore(logger, cfg.Database.Path)
	if err != nil {
		logger.Error("failed to create storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("Session registry initialized", "path", cfg.Database.Path)

	catalog, err := roles.NewCatalog()
	if err != nil {
		logger.Error("failed to load role catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("Role catalog loaded", "roles", len(catalog.List()))

	builder, err := prompt.NewBuilder()
	if err != nil {
		logger.Error("failed to load prompt templates", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var gw gateway.Gateway
	switch cfg.Gateway.Provider {
	case "gemini":
		gw = gemini.NewClientWithBaseURL(logger, cfg.Gateway.Model, cfg.Gateway.MaxOutputTokens, cfg.Gateway.Temperature, cfg.Gateway.Gemini.BaseURL)
		logger.Info("Gemini client created successfully.")
	case "yandexgpt":
		client, err := yandexgpt.NewClient(ctx, logger, cfg.Gateway.Yandex.FolderID, cfg.Gateway.Model, cfg.Gateway.MaxOutputTokens, cfg.Gateway.Temperature, cfg.Gateway.Yandex.Endpoint)
		if err != nil {
			logger.Error("failed to create yandexgpt client", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		gw = client
		logger.Info("YandexGPT client created successfully.")
	default:
		// Validate() already rejects anything else
		logger.Error("unknown gateway provider", "provider", cfg.Gateway.Provider)
		os.Exit(1)
	}

	controller := session.NewController(logger, catalog, builder, gw)
	hub := web.NewHub(logger, store, store)
	server := web.NewServer(logger, cfg, hub, controller, catalog, builder)

	logger.Info("Starting firstday", "version", Version)

	if err := server.Start(ctx); err != nil {
		logger.Error("web server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}
