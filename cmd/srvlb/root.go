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

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bufbuild/srvlb"
	"github.com/bufbuild/srvlb/internal/config"
	"github.com/bufbuild/srvlb/policy"
	"github.com/bufbuild/srvlb/resolver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	appName   = "srvlb"
	cfgFile   string
	logger    = zap.NewNop()
	globalCfg *config.Config
)

// errRequestFailed is returned by commands whose final HTTP response has an
// error status.
var errRequestFailed = errors.New("request failed")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          appName,
	Short:        "Inspect and call services located by DNS SRV records",
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return initConfig()
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = logger.Sync()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/srvlb.yaml)")
	config.MustViperFlags(viper.GetViper(), rootCmd.PersistentFlags())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME/.config")
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(appName)
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.SetEnvPrefix(appName)
	viper.AutomaticEnv()

	readErr := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if readErr != nil && (cfgFile != "" || !errors.As(readErr, &notFound)) {
		return fmt.Errorf("reading config: %w", readErr)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if logger, err = cfg.Logging.NewLogger(); err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	if readErr == nil {
		logger.Debug("using config file", zap.String("file", viper.ConfigFileUsed()))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	globalCfg = cfg
	return nil
}

// newClient builds a client from the configuration, returning it along
// with the policy it uses.
func newClient(cfg *config.Config) (*srvlb.Client, policy.Policy, error) {
	fallback, err := cfg.FallbackURL()
	if err != nil {
		return nil, nil, err
	}

	var pol policy.Policy
	switch cfg.SRV.Policy {
	case config.PolicyWeighted:
		pol = policy.NewWeighted()
	default:
		pol = policy.NewAffinity()
	}

	opts := []srvlb.ClientOption{
		srvlb.WithPolicy(pol),
		srvlb.WithScheme(cfg.SRV.Scheme),
		srvlb.WithPathPrefix(cfg.SRV.PathPrefix),
		srvlb.WithLogger(logger),
	}
	if len(cfg.SRV.Allow) > 0 {
		opts = append(opts, srvlb.WithAllowedHosts(cfg.SRV.Allow...))
	}
	if len(cfg.DNS.Servers) > 0 {
		unicast := resolver.NewUnicastResolver(cfg.DNS.Servers, resolver.WithTimeout(cfg.DNS.Timeout))
		opts = append(opts, srvlb.WithResolver(resolver.NewOrderedResolver(unicast)))
	}
	return srvlb.NewClient(cfg.SRV.Service, fallback, opts...), pol, nil
}
