// Package config holds the server settings assembled by the CLI.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("invalid-config")

const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 3030
	DefaultMaxParticipants = 16
	DefaultOutboundQueue   = 64
	DefaultTickInterval    = time.Second
	DefaultPingInterval    = 30 * time.Second
	DefaultAssetsSrc       = "assets/src"
	DefaultBuildCmd        = "yarn run build"
)

type Config struct {
	Host            string
	Port            int
	AllowedOrigins  []string
	LogLevel        string
	LogPretty       bool
	PostgresURL     string
	MaxParticipants int
	OutboundQueue   int
	TickInterval    time.Duration
	PingInterval    time.Duration
	Dev             bool
	AssetsSrc       string
	BuildCmd        string
}

func Default() Config {
	return Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		LogLevel:        "info",
		MaxParticipants: DefaultMaxParticipants,
		OutboundQueue:   DefaultOutboundQueue,
		TickInterval:    DefaultTickInterval,
		PingInterval:    DefaultPingInterval,
		AssetsSrc:       DefaultAssetsSrc,
		BuildCmd:        DefaultBuildCmd,
	}
}

// ParseOrigins splits a comma separated list, dropping blanks.
func ParseOrigins(raw string) []string {
	out := []string{}
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host is empty"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.MaxParticipants < 2 || c.MaxParticipants > 64 {
		errs = append(errs, fmt.Errorf("max participants %d not in 2..64", c.MaxParticipants))
	}
	if c.OutboundQueue < 8 || c.OutboundQueue > 1024 {
		errs = append(errs, fmt.Errorf("outbound queue %d not in 8..1024", c.OutboundQueue))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick interval must be positive"))
	}
	// pongs must arrive before the one minute read deadline
	if c.PingInterval < time.Second || c.PingInterval > 50*time.Second {
		errs = append(errs, fmt.Errorf("ping interval %s not in 1s..50s", c.PingInterval))
	}
	for _, o := range c.AllowedOrigins {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs = append(errs, fmt.Errorf("origin %q must start with http:// or https://", o))
		}
	}
	if c.Dev && (c.AssetsSrc == "" || c.BuildCmd == "") {
		errs = append(errs, errors.New("dev mode needs an assets source and a build command"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
