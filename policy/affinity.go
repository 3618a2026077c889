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
	"net/url"
	"sync/atomic"
)

// Affinity is a policy that prefers the target that most recently worked:
// if an operation succeeded on a target, that target is tried first next
// time, followed by all the others in cache order. This keeps a client on
// one target for as long as it keeps working.
type Affinity struct {
	// +checkatomic
	preferred atomic.Pointer[url.URL]
}

var _ Policy = (*Affinity)(nil)

// NewAffinity returns a new Affinity policy with no preferred target.
func NewAffinity() *Affinity {
	return &Affinity{}
}

// Refresh builds a cache of the source's candidates. Only the endpoints
// are kept, since the ordering never looks at priorities or weights.
func (a *Affinity) Refresh(ctx context.Context, src Source) (*Cache, error) {
	candidates, validUntil, err := src.FreshCandidates(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]Candidate, len(candidates))
	for i, candidate := range candidates {
		items[i] = Candidate{URL: candidate.URL}
	}
	return NewCache(items, validUntil), nil
}

// Order returns the index of the preferred target first, then every other
// index in ascending order. Without a preferred target in items, this is
// the identity order.
func (a *Affinity) Order(items []Candidate) []int {
	return orderPreferring(items, a.preferred.Load())
}

// NoteSuccess makes endpoint the preferred target.
func (a *Affinity) NoteSuccess(endpoint *url.URL) {
	if endpoint == nil {
		return
	}
	preferred := *endpoint
	a.preferred.Store(&preferred)
}

// NoteFailure does nothing: a failure never clears the preferred target.
func (a *Affinity) NoteFailure(*url.URL) {}

// Preferred returns the target that most recently worked, or nil.
func (a *Affinity) Preferred() *url.URL {
	preferred := a.preferred.Load()
	if preferred == nil {
		return nil
	}
	endpoint := *preferred
	return &endpoint
}

func orderPreferring(items []Candidate, preferred *url.URL) []int {
	if len(items) == 0 {
		return nil
	}
	first := 0
	if preferred != nil {
		want := preferred.String()
		for i, item := range items {
			if item.URL != nil && item.URL.String() == want {
				first = i
				break
			}
		}
	}
	order := make([]int, 0, len(items))
	order = append(order, first)
	for i := range items {
		if i != first {
			order = append(order, i)
		}
	}
	return order
}
