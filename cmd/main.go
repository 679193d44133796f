package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/pointgen-backend/internal/app"
	"github.com/yungbote/pointgen-backend/internal/platform/shutdown"
)

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		a.Log.Error("Server exited with error", "error", err)
		a.Log.Sync()
		os.Exit(1)
	}
	a.Log.Info("Server stopped")
}
