package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ytdigest/internal/app"
	"ytdigest/internal/config"
	"ytdigest/internal/logging"
)

func main() {
	_ = godotenv.Load()

	keywordID := flag.String("keyword", "", "keyword id the processed videos belong to")
	language := flag.String("lang", "", "preferred transcript language (BCP-47)")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	// Positional arguments are video references to process right away;
	// without them the process runs as a resuming daemon.
	refs := flag.Args()
	if len(refs) > 0 {
		exit := 0
		for _, ref := range refs {
			run, err := application.ProcessVideo(ctx, ref, *keywordID, *language)
			if err != nil {
				logger.Error("pipeline failed", "ref", ref, "error", err)
				exit = 1
				continue
			}
			logger.Info("pipeline finished", "ref", ref, "state", run.State)
		}
		os.Exit(exit)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
