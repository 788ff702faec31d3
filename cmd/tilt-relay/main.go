package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"tilt-relay/internal/application/supervisor"
	"tilt-relay/internal/infrastructure/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx))
}

func run(ctx context.Context) int {
	app, cleanup, err := initApplication(ctx)
	if err != nil {
		fallback, _ := logging.New("error", logging.WithService("tilt-relay"))
		fallback.Error("failed to initialise relay", "error", err.Error())
		return 1
	}
	defer cleanup()

	if err := app.Run(ctx); err != nil {
		// A non-zero exit lets the service manager restart the relay from
		// a clean state.
		if errors.Is(err, supervisor.ErrReset) {
			app.logger.Error("relay reset requested", "error", err.Error())
		} else {
			app.logger.Error("relay stopped with error", "error", err.Error())
		}
		return 1
	}

	app.logger.Info("relay stopped")
	return 0
}
