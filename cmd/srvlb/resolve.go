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
	"text/tabwriter"
	"time"

	"github.com/bufbuild/srvlb"
	"github.com/bufbuild/srvlb/internal/config"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "print the targets of the service, in the order they would be tried",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return resolve(cmd.Context(), cmd.OutOrStdout(), globalCfg)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func resolve(ctx context.Context, out io.Writer, cfg *config.Config) error {
	client, pol, err := newClient(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	candidates, validUntil, err := client.FreshCandidates(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%s: %w", client.Service(), srvlb.ErrNoTargets)
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ENDPOINT\tPRIORITY\tWEIGHT")
	for _, idx := range pol.Order(candidates) {
		candidate := candidates[idx]
		fmt.Fprintf(writer, "%s\t%d\t%d\n", candidate.URL, candidate.Priority, candidate.Weight)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "valid until %s (%s)\n",
		validUntil.Format(time.RFC3339), time.Until(validUntil).Round(time.Second))
	return err
}
