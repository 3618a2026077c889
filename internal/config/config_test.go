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

package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func newFlags(t *testing.T) (*viper.Viper, *pflag.FlagSet) {
	t.Helper()
	v := viper.New()
	flags := pflag.NewFlagSet("srvlb", pflag.ContinueOnError)
	MustViperFlags(v, flags)
	return v, flags
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	v, _ := newFlags(t)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "https", cfg.SRV.Scheme)
	assert.Equal(t, "/", cfg.SRV.PathPrefix)
	assert.Equal(t, PolicyAffinity, cfg.SRV.Policy)
	assert.Empty(t, cfg.DNS.Servers)
	assert.Equal(t, 2*time.Second, cfg.DNS.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.ErrorIs(t, cfg.Validate(), ErrMissingService)
}

func TestLoadFlags(t *testing.T) {
	t.Parallel()
	v, flags := newFlags(t)
	require.NoError(t, flags.Parse([]string{
		"--service", "_http._tcp.example.com",
		"--fallback", "http://fallback.example.com",
		"--allow", "example.com,192.0.2.1",
		"--scheme", "http",
		"--path-prefix", "/api",
		"--policy", "weighted",
		"--dns-server", "192.0.2.53",
		"--timeout", "5s",
		"--log-level", "debug",
		"--log-pretty",
	}))
	cfg, err := Load(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, SRVConfig{
		Service:    "_http._tcp.example.com",
		Fallback:   "http://fallback.example.com",
		Allow:      []string{"example.com", "192.0.2.1"},
		Scheme:     "http",
		PathPrefix: "/api",
		Policy:     PolicyWeighted,
	}, cfg.SRV)
	assert.Equal(t, []string{"192.0.2.53"}, cfg.DNS.Servers)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, LoggingConfig{Level: "debug", Pretty: true}, cfg.Logging)

	fallback, err := cfg.FallbackURL()
	require.NoError(t, err)
	assert.Equal(t, "fallback.example.com", fallback.Host)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	valid := SRVConfig{Service: "_http._tcp.example.com", Fallback: "https://example.com"}
	testCases := []struct {
		name    string
		modify  func(*SRVConfig)
		wantErr error
	}{
		{name: "valid", modify: func(*SRVConfig) {}},
		{name: "missing_service", modify: func(c *SRVConfig) { c.Service = "" }, wantErr: ErrMissingService},
		{name: "missing_fallback", modify: func(c *SRVConfig) { c.Fallback = "" }, wantErr: ErrInvalidFallback},
		{name: "relative_fallback", modify: func(c *SRVConfig) { c.Fallback = "/path" }, wantErr: ErrInvalidFallback},
		{name: "bad_fallback", modify: func(c *SRVConfig) { c.Fallback = "http://[::1" }, wantErr: ErrInvalidFallback},
		{name: "unknown_policy", modify: func(c *SRVConfig) { c.Policy = "random" }, wantErr: ErrUnknownPolicy},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{SRV: valid}
			testCase.modify(&cfg.SRV)
			err := cfg.Validate()
			if testCase.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	logger, err := LoggingConfig{Level: "warn"}.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = LoggingConfig{Pretty: true}.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = LoggingConfig{Level: "loud"}.NewLogger()
	require.Error(t, err)
}
