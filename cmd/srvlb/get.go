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
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/bufbuild/srvlb"
	"github.com/bufbuild/srvlb/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "send a GET request to the service and print the response body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return get(cmd.Context(), cmd.OutOrStdout(), globalCfg, args[0], nil)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}

// get sends a GET request for path through a Transport on top of base,
// which may be nil.
func get(ctx context.Context, out io.Writer, cfg *config.Config, path string, base http.RoundTripper) error {
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	// The host is replaced by the one of each target.
	reqURL := &url.URL{
		Scheme:   cfg.SRV.Scheme,
		Host:     client.Service(),
		Path:     ref.Path,
		RawQuery: ref.RawQuery,
	}

	httpClient := &http.Client{
		Transport: srvlb.NewTransport(client, base),
		Timeout:   cfg.Timeout,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	logger.Debug("received response", zap.String("status", resp.Status), zap.Int64("length", resp.ContentLength))
	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s", errRequestFailed, resp.Status)
	}
	return nil
}
