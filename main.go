package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"bgh-aircon/bgh/handler"
	"bgh-aircon/bgh/network"
	"bgh-aircon/client"
	"bgh-aircon/config"
	"bgh-aircon/console"
	"bgh-aircon/log"
	"bgh-aircon/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	args := config.ParseCommandLineArgs()

	cfg, err := config.LoadConfig(args.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	cfg.ApplyCommandLineArgs(args)

	if err := cfg.ValidateDevices(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	coordinatorOpts, err := cfg.CoordinatorOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	logger, err := log.Setup(cfg.Log.Filename, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log setup error: %v\n", err)
		return 1
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		fmt.Println("\nsignal received, shutting down...")
		cancel()
	}()

	// SIGHUP reopens the log file for external rotation.
	rotateSignalCh := make(chan os.Signal, 1)
	signal.Notify(rotateSignalCh, syscall.SIGHUP)
	go func() {
		for range rotateSignalCh {
			if err := logger.Rotate(); err != nil {
				fmt.Fprintf(os.Stderr, "log rotation error: %v\n", err)
			}
		}
	}()

	// Status broadcasts arrive on the broadcast port; commands go out to
	// the units' command port.
	transport, err := network.CreateUDPTransport(ctx, cfg.Network.BroadcastPort, cfg.Network.CommandPort, network.MonitorConfig{Enabled: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "UDP transport error: %v\n", err)
		return 1
	}

	registry := handler.NewDeviceRegistry()
	coordinator := handler.NewStateCoordinator(ctx, transport, registry, coordinatorOpts)
	defer func() {
		if err := coordinator.Close(); err != nil {
			slog.Error("Error closing coordinator", "err", err)
		}
	}()

	for _, d := range cfg.Devices {
		if err := coordinator.RegisterDevice(handler.DeviceID(d.ID), net.ParseIP(d.IP)); err != nil {
			fmt.Fprintf(os.Stderr, "device %s: %v\n", d.ID, err)
			return 1
		}
	}

	coordinator.StartMainLoop()
	slog.Info("Coordinator started", "devices", len(cfg.Devices),
		"pollInterval", coordinatorOpts.PollInterval, "stalenessThreshold", coordinatorOpts.StalenessThreshold)

	localClient := client.NewLocalClient(coordinator)

	var ws *server.WebSocketServer
	if cfg.WebSocket.Enabled {
		pushInterval, err := cfg.PeriodicUpdateInterval()
		if err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			return 1
		}
		wsTransport := server.NewDefaultWebSocketTransport(ctx, cfg.WebSocket.Addr)
		ws = server.NewWebSocketServer(ctx, wsTransport, localClient, &server.RealTimeProvider{}, pushInterval)

		options := server.StartOptions{Ready: make(chan struct{})}
		if cfg.TLS.Enabled {
			options.CertFile = cfg.TLS.CertFile
			options.KeyFile = cfg.TLS.KeyFile
		}

		go func() {
			if err := ws.Start(options, coordinator.NotificationCh); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("WebSocket server stopped", "err", err)
				cancel()
			}
		}()
		select {
		case <-options.Ready:
			fmt.Printf("WebSocket server listening on %s\n", cfg.WebSocket.Addr)
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "WebSocket server failed to start")
			return 1
		}
		defer func() {
			_ = ws.Stop()
		}()
	} else {
		// Nobody consumes notifications without the server; drain the
		// channel so emission never degrades to warnings.
		go func() {
			for range coordinator.NotificationCh {
			}
		}()
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		console.Run(ctx, localClient)
		return 0
	}

	<-ctx.Done()
	return 0
}
