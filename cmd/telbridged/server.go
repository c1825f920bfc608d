package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/arloliu/go-telbridge/bridge"
	"github.com/arloliu/go-telbridge/logger"
	"github.com/arloliu/go-telbridge/uart"
)

// statusLogger reports link and session status changes to the log. On
// the original hardware these transitions drove front-panel LEDs.
type statusLogger struct {
	logger logger.Logger
}

func (s *statusLogger) LinkUp(up bool) {
	if up {
		s.logger.Info("bridge link up")
	} else {
		s.logger.Info("bridge link down")
	}
}

func (s *statusLogger) SessionActive(active bool) {
	if active {
		s.logger.Info("session active")
	} else {
		s.logger.Info("session idle")
	}
}

func server(cfg *serveConfig) error {
	if cfg.debug {
		logger.SetLevel(logger.DebugLevel)
	}

	log := logger.GetLogger()

	host, portStr, err := net.SplitHostPort(cfg.bindAddr)
	if err != nil {
		return fmt.Errorf("invalid bind address %q: %w", cfg.bindAddr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid bind port %q: %w", portStr, err)
	}

	transport, err := uart.Open(cfg.device, uart.WithBaudRate(cfg.baudRate))
	if err != nil {
		return err
	}
	defer func() { _ = transport.Close() }()

	opts := []bridge.Option{
		bridge.WithSerialTransport(transport),
		bridge.WithNULFiltering(cfg.nulFiltering),
		bridge.WithStatusIndicator(&statusLogger{logger: log}),
	}

	reset, err := buildResetLine(transport, cfg)
	if err != nil {
		return err
	}
	if reset != nil {
		opts = append(opts, bridge.WithResetLine(reset))
	}

	bridgeCfg, err := bridge.NewConfig(host, port, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := bridge.NewServer(ctx, bridgeCfg)
	if err != nil {
		return err
	}

	if cfg.metricsAddr != "" {
		go startMetricsServer(cfg.metricsAddr, srv)
	}

	if err := srv.Open(); err != nil {
		return err
	}

	<-ctx.Done()

	log.Info("exit signal received")

	return srv.Close()
}

// buildResetLine maps the reset-line flag onto a modem control output
// of the transport. A nil result means BRK is acknowledged without
// touching any hardware.
func buildResetLine(transport *uart.Transport, cfg *serveConfig) (bridge.ResetLine, error) {
	if cfg.resetLine == "none" {
		return nil, nil
	}

	lineOpts := []uart.LineOption{uart.WithHoldTime(cfg.resetHold)}
	if cfg.invertReset {
		lineOpts = append(lineOpts, uart.WithInvertedPolarity())
	}

	if cfg.resetLine == "rts" {
		return uart.NewRTSLine(transport, lineOpts...)
	}

	return uart.NewDTRLine(transport, lineOpts...)
}
