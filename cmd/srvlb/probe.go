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
	"time"

	"github.com/bufbuild/srvlb/internal/config"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	probeCmd = &cobra.Command{
		Use:   "probe",
		Short: "send a GET request to every target of the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return probe(cmd.Context(), cmd.OutOrStdout(), globalCfg, probeConcurrency, nil)
		},
	}

	probeConcurrency int
)

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().IntVar(&probeConcurrency, "concurrency", 4, "number of targets probed at once")
}

type probeResult struct {
	endpoint string
	status   string
	elapsed  time.Duration
	err      error
}

// probe sends a GET request to the endpoint of every candidate, using base
// as the round tripper, or a pooled transport if base is nil. The fallback
// is not probed.
func probe(ctx context.Context, out io.Writer, cfg *config.Config, concurrency int, base http.RoundTripper) error {
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	candidates, _, err := client.FreshCandidates(ctx)
	if err != nil {
		return err
	}
	if base == nil {
		base = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	}
	httpClient := &http.Client{Transport: base}

	results := make([]probeResult, len(candidates))
	grp, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		grp.SetLimit(concurrency)
	}
	for i, candidate := range candidates {
		endpoint := candidate.Endpoint()
		grp.Go(func() error {
			results[i] = probeEndpoint(ctx, httpClient, endpoint.String())
			// Probe failures are reported once every target has been tried.
			return nil
		})
	}
	_ = grp.Wait()

	var errs error
	for _, result := range results {
		if result.err != nil {
			fmt.Fprintf(out, "FAIL  %s  %v\n", result.endpoint, result.err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", result.endpoint, result.err))
			continue
		}
		fmt.Fprintf(out, "OK    %s  %s  %s\n", result.endpoint, result.status, result.elapsed.Round(time.Millisecond))
	}
	logger.Debug("probed targets", zap.Int("targets", len(results)), zap.Int("failed", len(multierr.Errors(errs))))
	return errs
}

func probeEndpoint(ctx context.Context, httpClient *http.Client, endpoint string) probeResult {
	result := probeResult{endpoint: endpoint}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		result.err = err
		return result
	}
	resp, err := httpClient.Do(req)
	result.elapsed = time.Since(start)
	if err != nil {
		result.err = err
		return result
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	result.status = resp.Status
	if resp.StatusCode >= http.StatusBadRequest {
		result.err = fmt.Errorf("%w: %s", errRequestFailed, resp.Status)
	}
	return result
}
