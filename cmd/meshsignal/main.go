// Meshsignal — CLI entry point.
//
// This tool runs either side of the room signaling service described in
// SPEC_FULL.md: the -role=server side hosts the WebSocket hub, room
// registry, and read-only HTTP listing surface; the -role=client side
// joins a room and drives WebRTC negotiation against its other members.
//
// It can be launched non-interactively via flags (-role, -addr, -room,
// -user, -nickname) or interactively when no -role is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/pterm/pterm"

	"github.com/rendezvous-rtc/meshsignal/internal/app"
	"github.com/rendezvous-rtc/meshsignal/internal/config"
	"github.com/rendezvous-rtc/meshsignal/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	role := flag.String("role", "", "Role: server or client")
	addr := flag.String("addr", ":3000", "Listen address (server) or ws:// URL (client)")
	room := flag.String("room", "", "Room ID to join (client only)")
	user := flag.String("user", "", "User ID to join as (client only, default random)")
	nickname := flag.String("nickname", "", "Display nickname (client only)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("meshsignal — v%s", version))
	pterm.Println()

	switch *role {
	case "":
		runInteractive(ctx)

	case "server":
		cfg := config.NewServerConfig()
		if *addr != ":3000" {
			cfg.ListenAddr = *addr
		}
		runServer(ctx, cfg)

	case "client":
		if *room == "" {
			util.LogFatal("missing -room for client role")
		}
		cfg := config.ClientConfig{
			ServerURL:   normalizeWSURL(*addr),
			RoomID:      *room,
			UserID:      orRandomID(*user),
			Nickname:    orNickname(*nickname, *user),
			STUNServers: config.DefaultSTUNServers,
		}
		runClient(ctx, cfg)

	default:
		util.LogFatal("invalid -role: must be 'server' or 'client'")
	}

	util.LogInfo("meshsignal exiting")
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

func runInteractive(ctx context.Context) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Server — Host the signaling service", "Client — Join a room"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Server") {
		addr := askText("Listen address (e.g. :3000)", ":3000")
		runServer(ctx, config.ServerConfig{ListenAddr: addr, STUNServers: config.DefaultSTUNServers})
		return
	}

	wsURL := normalizeWSURL(askText("Signaling server address (e.g. localhost:3000)", "localhost:3000"))
	roomID := askText("Room ID", "")
	nickname := askText("Nickname", "guest")

	runClient(ctx, config.ClientConfig{
		ServerURL:   wsURL,
		RoomID:      roomID,
		UserID:      uuid.NewString(),
		Nickname:    nickname,
		STUNServers: config.DefaultSTUNServers,
	})
}

func runServer(ctx context.Context, cfg config.ServerConfig) {
	if err := app.RunServer(ctx, cfg); err != nil {
		util.LogFatal("server exited: %v", err)
	}
}

func runClient(ctx context.Context, cfg config.ClientConfig) {
	if err := app.RunClient(ctx, cfg); err != nil {
		util.LogFatal("client exited: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// normalizeWSURL accepts a bare host:port or a full ws(s):// URL and
// returns a ws(s)://host/ws URL, mirroring the teacher's tunnel CLI's own
// URL-normalization helper.
func normalizeWSURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "ws://") || strings.HasPrefix(raw, "wss://") {
		if strings.HasSuffix(raw, "/ws") {
			return raw
		}
		return strings.TrimSuffix(raw, "/") + "/ws"
	}
	return "ws://" + strings.TrimPrefix(raw, "//") + "/ws"
}

func orRandomID(user string) string {
	if user != "" {
		return user
	}
	return uuid.NewString()
}

func orNickname(nickname, user string) string {
	if nickname != "" {
		return nickname
	}
	if user != "" {
		return user
	}
	return "guest"
}

func askText(prompt, def string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		Show()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	return raw
}
