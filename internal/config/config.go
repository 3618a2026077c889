// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the configuration of the srvlb command.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// PolicyAffinity selects policy.NewAffinity.
	PolicyAffinity = "affinity"
	// PolicyWeighted selects policy.NewWeighted.
	PolicyWeighted = "weighted"
)

var (
	// ErrMissingService is returned when no SRV name is configured.
	ErrMissingService = errors.New("no SRV service name configured")
	// ErrInvalidFallback is returned when the fallback URL is missing or
	// cannot be parsed.
	ErrInvalidFallback = errors.New("invalid fallback URL")
	// ErrUnknownPolicy is returned when the configured policy does not exist.
	ErrUnknownPolicy = errors.New("unknown policy")
)

// Config is the configuration of the srvlb command.
type Config struct {
	SRV     SRVConfig
	DNS     DNSConfig
	Logging LoggingConfig
	Timeout time.Duration
}

// SRVConfig configures the client of the service.
type SRVConfig struct {
	Service    string
	Fallback   string
	Allow      []string
	Scheme     string
	PathPrefix string
	Policy     string
}

// DNSConfig configures how SRV records are resolved. Without servers, the
// system resolver is used.
type DNSConfig struct {
	Servers []string
	Timeout time.Duration
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// MustViperFlags defines the flags of the srvlb command on flags and binds
// them to v.
func MustViperFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.String("service", "", "SRV name of the service, such as _https._tcp.example.com")
	mustBindFlag(v, "srv.service", flags.Lookup("service"))

	flags.String("fallback", "", "URL used when no target of the service works")
	mustBindFlag(v, "srv.fallback", flags.Lookup("fallback"))

	flags.StringSlice("allow", nil, "hosts targets are restricted to: IP addresses or domain suffixes")
	mustBindFlag(v, "srv.allow", flags.Lookup("allow"))

	flags.String("scheme", "https", "URL scheme of the targets")
	mustBindFlag(v, "srv.scheme", flags.Lookup("scheme"))

	flags.String("path-prefix", "/", "URL path of the targets")
	mustBindFlag(v, "srv.pathprefix", flags.Lookup("path-prefix"))

	flags.String("policy", PolicyAffinity, "target selection policy (affinity, weighted)")
	mustBindFlag(v, "srv.policy", flags.Lookup("policy"))

	flags.StringSlice("dns-server", nil, "DNS servers queried directly, honoring record TTLs (default is the system resolver)")
	mustBindFlag(v, "dns.servers", flags.Lookup("dns-server"))

	flags.Duration("dns-timeout", 2*time.Second, "timeout of a single DNS query")
	mustBindFlag(v, "dns.timeout", flags.Lookup("dns-timeout"))

	flags.Duration("timeout", 30*time.Second, "timeout of a command")
	mustBindFlag(v, "timeout", flags.Lookup("timeout"))

	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	mustBindFlag(v, "logging.level", flags.Lookup("log-level"))

	flags.Bool("log-pretty", false, "log in a human readable format")
	mustBindFlag(v, "logging.pretty", flags.Lookup("log-pretty"))
}

func mustBindFlag(v *viper.Viper, name string, flag *pflag.Flag) {
	if err := v.BindPFlag(name, flag); err != nil {
		panic(err)
	}
}

// Load reads the configuration bound to v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to process config: %w", err)
	}
	return &cfg, nil
}

// Validate reports whether the configuration can be used to build a client.
func (c *Config) Validate() error {
	if c.SRV.Service == "" {
		return ErrMissingService
	}
	if c.SRV.Fallback == "" {
		return fmt.Errorf("%w: none configured", ErrInvalidFallback)
	}
	if _, err := c.FallbackURL(); err != nil {
		return err
	}
	switch c.SRV.Policy {
	case "", PolicyAffinity, PolicyWeighted:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, c.SRV.Policy)
	}
	return nil
}

// FallbackURL returns the parsed fallback URL.
func (c *Config) FallbackURL() (*url.URL, error) {
	fallback, err := url.Parse(c.SRV.Fallback)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFallback, err)
	}
	if fallback.Scheme == "" || fallback.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidFallback, c.SRV.Fallback)
	}
	return fallback, nil
}

// NewLogger returns a logger writing to stderr at the configured level.
func (c LoggingConfig) NewLogger() (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if c.Pretty {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level := zapcore.InfoLevel
	if c.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(c.Level); err != nil {
			return nil, err
		}
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
