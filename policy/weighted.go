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

package policy

import (
	"context"
	"slices"

	"github.com/bufbuild/srvlb/internal"
)

// Weighted is a policy that orders targets per RFC 2782: ascending by
// priority and, within a priority, randomly in proportion to the targets'
// weights. The random draws are repeated for every operation, so load is
// spread over all targets of the best priority.
//
// Weighted does not learn from attempt outcomes.
type Weighted struct {
	NopNotifier
}

var _ Policy = Weighted{}

// NewWeighted returns a new Weighted policy.
func NewWeighted() Weighted {
	return Weighted{}
}

// Refresh builds a cache of the source's candidates, keeping their
// priorities and weights.
func (Weighted) Refresh(ctx context.Context, src Source) (*Cache, error) {
	candidates, validUntil, err := src.FreshCandidates(ctx)
	if err != nil {
		return nil, err
	}
	return NewCache(candidates, validUntil), nil
}

// Order sorts the indices of items by priority, then by weight multiplied
// by a random draw made for each item on each call.
func (Weighted) Order(items []Candidate) []int {
	if len(items) == 0 {
		return nil
	}
	rnd := internal.NewRand()
	keys := make([]internal.SortKey, len(items))
	order := make([]int, len(items))
	for i, item := range items {
		keys[i] = internal.NewSortKey(item.Priority, item.Weight, rnd)
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return keys[a].Compare(keys[b])
	})
	return order
}
