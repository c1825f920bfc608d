package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli"
)

type serveConfig struct {
	bindAddr     string
	device       string
	baudRate     int
	resetLine    string
	resetHold    time.Duration
	invertReset  bool
	nulFiltering bool
	metricsAddr  string
	debug        bool
}

func parseServeConfig(c *cli.Context) (*serveConfig, error) {
	ret := &serveConfig{
		bindAddr:     c.String("bind-address"),
		device:       c.String("device"),
		baudRate:     c.Int("baud-rate"),
		resetLine:    c.String("reset-line"),
		resetHold:    c.Duration("reset-hold"),
		invertReset:  c.Bool("invert-reset"),
		nulFiltering: !c.Bool("disable-nul-filter"),
		metricsAddr:  c.String("metrics-addr"),
		debug:        c.Bool("debug"),
	}

	if ret.device == "" {
		return nil, fmt.Errorf("a serial device is required")
	}

	switch ret.resetLine {
	case "dtr", "rts", "none":
	default:
		return nil, fmt.Errorf("invalid reset line %q, should be dtr, rts or none", ret.resetLine)
	}

	return ret, nil
}
