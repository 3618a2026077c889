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

// Package policy provides the target selection policies used by a client
// to decide the order in which discovered targets are tried.
//
// A [Policy] builds the [Cache] of candidates from a [Source] whenever the
// previous one expires, orders the cached candidates for every operation,
// and may learn from the outcome of each attempt. Two policies are
// provided: [NewAffinity], which keeps using the last target that worked,
// and [NewWeighted], which orders targets by SRV priority and weight as
// described in RFC 2782.
package policy

import (
	"context"
	"net/url"
	"time"
)

// Candidate is a dispatchable endpoint derived from a single SRV record.
type Candidate struct {
	// URL is the endpoint, in "scheme://target:port/prefix" form.
	URL *url.URL
	// Priority of the record the candidate was derived from. Zero for
	// policies that do not retain record metadata.
	Priority uint16
	// Weight of the record the candidate was derived from. Zero for
	// policies that do not retain record metadata.
	Weight uint16
}

// Endpoint returns a copy of the candidate's URL, which the caller is free
// to modify.
func (c Candidate) Endpoint() *url.URL {
	if c.URL == nil {
		return nil
	}
	endpoint := *c.URL
	return &endpoint
}

// Source provides fresh candidates to a policy when its cache needs to be
// rebuilt. A client is a Source: candidates come from resolving the
// client's SRV name and filtering the results by its allow-list.
type Source interface {
	// FreshCandidates resolves the candidates anew, returning them along with
	// the instant until which they are valid.
	FreshCandidates(ctx context.Context) ([]Candidate, time.Time, error)
}

// Policy decides the order in which a client tries cached candidates.
//
// Implementations must be safe for concurrent use: a client may call any of
// the methods from multiple goroutines at once.
type Policy interface {
	// Refresh builds a new cache from the given source.
	Refresh(ctx context.Context, src Source) (*Cache, error)
	// Order returns indices into items in the order they should be tried.
	// Every call computes a fresh ordering; it never returns an index more
	// than once or one that is out of range.
	Order(items []Candidate) []int
	// NoteSuccess is called after an operation succeeds on endpoint.
	NoteSuccess(endpoint *url.URL)
	// NoteFailure is called after an operation fails on endpoint.
	NoteFailure(endpoint *url.URL)
}

// NopNotifier can be embedded in a Policy implementation that does not learn
// from the outcome of attempts.
type NopNotifier struct{}

// NoteSuccess does nothing.
func (NopNotifier) NoteSuccess(*url.URL) {}

// NoteFailure does nothing.
func (NopNotifier) NoteFailure(*url.URL) {}
