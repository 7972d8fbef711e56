// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Thermoquad/mistral/internal/config"
	"github.com/Thermoquad/mistral/internal/logger"
)

var (
	cfgFile string
	v       = viper.New()

	// Loaded before any subcommand runs
	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mistral",
	Short: "Infrared climate controller for Fujitsu air conditioners",
	Long: `Mistral - Infrared control for Fujitsu air conditioners (AR-DB1 legacy remote).

Mistral encodes thermostat states into the remote's infrared frames, sends them
through an IR bridge (or GPIO pins), decodes frames captured from the physical
remote and keeps the unit's state in sync.

Connection modes:
  Serial bridge:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket bridge: --url ws://host/path [--username user]
  GPIO (serve):     device.transmitter_pin / device.receiver_pin in the config

Configuration is read from --config, or mistral.yaml in . or /etc/mistral.
Every key can be overridden with a MISTRAL_ environment variable, e.g.
MISTRAL_BRIDGE_PORT. For WebSocket authentication, the password is read from
MISTRAL_PASSWORD or prompted interactively; there is no --password flag so it
never lands in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (default mistral.yaml in . or /etc/mistral)")

	// Serial bridge flags
	flags.StringP("port", "p", "", "Serial port of the IR bridge")
	flags.IntP("baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket bridge flags
	flags.StringP("url", "u", "", "WebSocket URL of the IR bridge (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	flags.String("log-level", logger.InfoLevel, "Log level: debug, info, warn, error")

	for key, flag := range map[string]string{
		"bridge.port":          "port",
		"bridge.baud":          "baud",
		"bridge.url":           "url",
		"bridge.username":      "username",
		"bridge.no_ssl_verify": "no-ssl-verify",
		"log.level":            "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded
	log = logger.New(cfg.Log.Level)
	log.Debugw("configuration loaded", "file", v.ConfigFileUsed(), "device", cfg.Device.ID)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitError makes the process exit with Code
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func exitError(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}
