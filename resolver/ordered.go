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

package resolver

import (
	"context"
	"slices"
	"time"

	"github.com/bufbuild/srvlb/internal"
)

// SortRecords sorts records in place per RFC 2782: ascending by priority
// and, within a priority, by weight-proportional random selection. Each call
// draws new random values, so records with the same priority may come out
// in a different order every time.
func SortRecords(records []Record) {
	rnd := internal.NewRand()
	keys := make([]internal.SortKey, len(records))
	indices := make([]int, len(records))
	for i, record := range records {
		keys[i] = internal.NewSortKey(record.Priority, record.Weight, rnd)
		indices[i] = i
	}
	slices.SortStableFunc(indices, func(a, b int) int {
		return keys[a].Compare(keys[b])
	})
	sorted := make([]Record, len(records))
	for i, idx := range indices {
		sorted[i] = records[idx]
	}
	copy(records, sorted)
}

// NewOrderedResolver returns a Resolver decorator that sorts the records
// returned by the given resolver with SortRecords. Errors and validity are
// passed through unchanged.
func NewOrderedResolver(resolver Resolver) Resolver {
	return &orderedResolver{resolver: resolver}
}

type orderedResolver struct {
	resolver Resolver
}

func (r *orderedResolver) LookupSRV(ctx context.Context, name string) ([]Record, time.Time, error) {
	records, validUntil, err := r.resolver.LookupSRV(ctx, name)
	if err != nil {
		return nil, validUntil, err
	}
	SortRecords(records)
	return records, validUntil, nil
}
