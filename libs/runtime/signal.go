package runtime

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownContext is cancelled on the first SIGINT or SIGTERM so servers can
// drain. A second signal while draining exits the process with status 1.
func ShutdownContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigs:
			logger.Info("shutdown requested", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			signal.Stop(sigs)
			return
		}
		if sig, ok := <-sigs; ok {
			logger.Warn("forced exit", "signal", sig.String())
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}
