package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rohanthewiz/logger"

	"notemirror/engine"
	"notemirror/models"
	"notemirror/remote"
)

// Exit codes: 0 — synced (possibly with warnings, which retry next run),
// 1 — fatal condition, 3 — rate limited (rerun after the reported wait).
const (
	exitOK          = 0
	exitFatal       = 1
	exitRateLimited = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logLevel := os.Getenv("NOTEMIRROR_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.SetLogLevel(logLevel)

	cfg, err := engine.LoadConfig()
	if err != nil {
		logger.LogErr(err, "invalid configuration")
		return exitFatal
	}
	if err := cfg.Validate(); err != nil {
		logger.LogErr(err, "invalid configuration")
		return exitFatal
	}

	if err := models.InitDB(cfg.DatabasePath); err != nil {
		logger.LogErr(err, "failed to open mirror database", "path", cfg.DatabasePath)
		return exitFatal
	}
	defer models.CloseDB()

	// Operator interrupt cancels the run; any atomic unit already begun is
	// either committed or rolled back, never half-visible to the next run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := remote.NewHTTPClient(cfg.RemoteBaseURL, cfg.AuthToken)
	if cfg.HTTPTimeout > 0 {
		client.SetTimeout(cfg.HTTPTimeout)
	}
	coordinator := engine.NewCoordinator(client, cfg)

	report, err := coordinator.Run(ctx)
	fmt.Print(report.Summary())

	if err != nil {
		if remote.Classify(err) == remote.ClassRateLimited {
			return exitRateLimited
		}
		return exitFatal
	}
	return exitOK
}
