package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pterm/pterm"

	"github.com/rendezvous-rtc/meshsignal/internal/config"
	"github.com/rendezvous-rtc/meshsignal/internal/httpapi"
	"github.com/rendezvous-rtc/meshsignal/internal/registry"
	"github.com/rendezvous-rtc/meshsignal/internal/util"
	"github.com/rendezvous-rtc/meshsignal/internal/wsserver"
)

// RunServer orchestrates the full signaling server lifecycle: room
// registry, WebSocket hub, read-only HTTP API, and graceful shutdown on
// ctx cancellation.
func RunServer(ctx context.Context, cfg config.ServerConfig) error {
	reg := registry.New()
	hub := wsserver.NewHub(reg)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.ServeWS)
	httpapi.Register(mux, reg)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	printBanner(cfg)
	util.StartStatsReporter(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
		}
		return nil
	case <-ctx.Done():
		util.LogInfo("shutting down signaling server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func printBanner(cfg config.ServerConfig) {
	pterm.Println()
	pterm.Println("╔══════════════════════════════════════════╗")
	pterm.Println("║          Mesh Signaling Server           ║")
	pterm.Println("╠══════════════════════════════════════════╣")
	pterm.Printf("║  Listen : %-30s ║\n", cfg.ListenAddr)
	pterm.Printf("║  STUN   : %-30s ║\n", cfg.STUNServers[0])
	pterm.Println("╚══════════════════════════════════════════╝")
	pterm.Println()
	util.LogInfo("waiting for clients on %s", cfg.ListenAddr)
}
