package main

import (
	"os"
	"path"

	"github.com/urfave/cli"

	"github.com/arloliu/go-telbridge/logger"
	"github.com/arloliu/go-telbridge/uart"
)

var (
	// GitTag will be overwritten automatically by the build system
	GitTag = "n/a"
	// GitSha will be overwritten automatically by the build system
	GitSha = "n/a"
)

func main() {
	app := cli.NewApp()
	app.Name = path.Base(os.Args[0])
	app.Usage = "TELNET to UART bridge for retrocomputer consoles"
	app.Version = GitTag + " (" + GitSha + ")"
	app.Commands = []cli.Command{
		{
			Name:  "server",
			Usage: "Start the bridge server",
			Action: func(c *cli.Context) error {
				cfg, err := parseServeConfig(c)
				if err != nil {
					return err
				}

				return server(cfg)
			},
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "bind-address, b",
					EnvVar: "TELBRIDGE_BIND",
					Value:  ":23",
					Usage:  "TELNET server bind address",
				},
				cli.StringFlag{
					Name:   "device, d",
					EnvVar: "TELBRIDGE_DEVICE",
					Value:  "/dev/ttyUSB0",
					Usage:  "Serial device connected to the retro machine",
				},
				cli.IntFlag{
					Name:   "baud-rate",
					EnvVar: "TELBRIDGE_BAUD",
					Value:  uart.DefaultBaudRate,
					Usage:  "Serial line speed (frame format is fixed at 8N1)",
				},
				cli.StringFlag{
					Name:   "reset-line",
					EnvVar: "TELBRIDGE_RESET_LINE",
					Value:  "dtr",
					Usage:  "Modem control output pulsed on TELNET BRK: dtr, rts or none",
				},
				cli.DurationFlag{
					Name:   "reset-hold",
					EnvVar: "TELBRIDGE_RESET_HOLD",
					Value:  uart.DefaultHoldTime,
					Usage:  "How long the reset line stays asserted per pulse",
				},
				cli.BoolFlag{
					Name:   "invert-reset",
					EnvVar: "TELBRIDGE_RESET_INVERT",
					Usage:  "Invert the reset line drive sense for circuits that idle asserted",
				},
				cli.BoolFlag{
					Name:   "disable-nul-filter",
					EnvVar: "TELBRIDGE_DISABLE_NUL_FILTER",
					Usage:  "Forward NUL bytes to the device instead of dropping them",
				},
				cli.StringFlag{
					Name:   "metrics-addr",
					EnvVar: "TELBRIDGE_METRICS_ADDR",
					Usage:  "Prometheus metrics listen address (empty disables the endpoint)",
				},
				cli.BoolFlag{
					Name:   "debug, D",
					EnvVar: "TELBRIDGE_DEBUG",
					Usage:  "Display debug information",
				},
			},
		}, {
			Name:  "healthcheck",
			Usage: "Probe a running bridge server",
			Action: func(c *cli.Context) error {
				return healthcheck(c.String("addr"), c.Bool("wait"), c.Bool("quiet"))
			},
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "addr, a",
					Value: "localhost:23",
					Usage: "bridge server address",
				},
				cli.BoolFlag{
					Name:  "wait, w",
					Usage: "Loop indefinitely until the bridge is ready",
				},
				cli.BoolFlag{
					Name:  "quiet, q",
					Usage: "Do not print errors, if any",
				},
			},
		}, {
			Name:  "client",
			Usage: "Attach this terminal to a bridge server",
			Action: func(c *cli.Context) error {
				return client(c.String("addr"))
			},
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "addr, a",
					Value: "localhost:23",
					Usage: "bridge server address",
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.GetLogger().Fatal("telbridged failed", "error", err)
	}
}
