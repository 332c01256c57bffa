package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// waitForInterrupt blocks until SIGINT/SIGTERM or context cancellation.
func waitForInterrupt(ctx context.Context) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	select {
	case <-sig:
	case <-ctx.Done():
	}
}
