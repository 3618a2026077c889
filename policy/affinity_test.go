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
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffinityOrder(t *testing.T) {
	t.Parallel()

	google := mustParseURL(t, "https://google.com:443/")
	amazon := mustParseURL(t, "https://amazon.com:443/")
	desco := mustParseURL(t, "https://deshaw.com:443/")
	items := candidates(google, amazon, desco)

	testCases := []struct {
		name      string
		preferred *url.URL
		expect    []int
	}{
		{"none", nil, []int{0, 1, 2}},
		{"first", google, []int{0, 1, 2}},
		{"middle", amazon, []int{1, 0, 2}},
		{"last", desco, []int{2, 0, 1}},
		{"unknown", mustParseURL(t, "https://example.com:443/"), []int{0, 1, 2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expect, orderPreferring(items, tc.preferred))
		})
	}
}

func TestAffinityOrderEmpty(t *testing.T) {
	t.Parallel()

	affinity := NewAffinity()
	assert.Empty(t, affinity.Order(nil))
	affinity.NoteSuccess(mustParseURL(t, "https://google.com:443/"))
	assert.Empty(t, affinity.Order([]Candidate{}))
}

func TestAffinityNotes(t *testing.T) {
	t.Parallel()

	first := mustParseURL(t, "https://one.example.com:443/")
	second := mustParseURL(t, "https://two.example.com:443/")
	third := mustParseURL(t, "https://three.example.com:443/")
	items := candidates(first, second, third)

	affinity := NewAffinity()
	assert.Nil(t, affinity.Preferred())
	assert.Equal(t, []int{0, 1, 2}, affinity.Order(items))

	affinity.NoteSuccess(third)
	assert.Equal(t, []int{2, 0, 1}, affinity.Order(items))
	assert.Equal(t, third.String(), affinity.Preferred().String())

	// Failures never clear the preference.
	affinity.NoteFailure(third)
	assert.Equal(t, []int{2, 0, 1}, affinity.Order(items))

	// Later successes replace it.
	noted := mustParseURL(t, "https://two.example.com:443/")
	affinity.NoteSuccess(noted)
	assert.Equal(t, []int{1, 0, 2}, affinity.Order(items))

	// The stored preference is a copy.
	noted.Host = "changed.example.com:443"
	assert.Equal(t, []int{1, 0, 2}, affinity.Order(items))
	assert.Equal(t, second.String(), affinity.Preferred().String())
}

func TestAffinityRefresh(t *testing.T) {
	t.Parallel()

	expiry := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := sourceFunc(func(context.Context) ([]Candidate, time.Time, error) {
		return []Candidate{
			{URL: mustParseURL(t, "https://one.example.com:443/"), Priority: 1, Weight: 10},
			{URL: mustParseURL(t, "https://two.example.com:443/"), Priority: 2, Weight: 20},
		}, expiry, nil
	})

	cache, err := NewAffinity().Refresh(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, expiry, cache.Expiry())
	require.Equal(t, 2, cache.Len())
	for _, item := range cache.Items() {
		assert.Zero(t, item.Priority)
		assert.Zero(t, item.Weight)
	}
	assert.Equal(t, "https://one.example.com:443/", cache.Items()[0].URL.String())

	lookupErr := errors.New("lookup failed")
	_, err = NewAffinity().Refresh(context.Background(), sourceFunc(func(context.Context) ([]Candidate, time.Time, error) {
		return nil, time.Time{}, lookupErr
	}))
	require.ErrorIs(t, err, lookupErr)
}

func TestCandidateEndpoint(t *testing.T) {
	t.Parallel()

	candidate := Candidate{URL: mustParseURL(t, "https://one.example.com:443/api")}
	endpoint := candidate.Endpoint()
	endpoint.Path = "/other"
	assert.Equal(t, "/api", candidate.URL.Path)

	assert.Nil(t, Candidate{}.Endpoint())
}

func TestCacheValidity(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewCache(nil, now.Add(time.Minute))
	assert.True(t, cache.ValidAt(now))
	assert.True(t, cache.ValidAt(now.Add(time.Minute-time.Nanosecond)))
	assert.False(t, cache.ValidAt(now.Add(time.Minute)))
	assert.False(t, cache.ValidAt(now.Add(time.Hour)))

	assert.True(t, NewCache(nil, time.Now().Add(time.Hour)).Valid())
	assert.False(t, NewCache(nil, time.Time{}).Valid())

	var empty *Cache
	assert.False(t, empty.ValidAt(now))
	assert.Zero(t, empty.Len())
	assert.Nil(t, empty.Items())
	assert.True(t, empty.Expiry().IsZero())
}

type sourceFunc func(ctx context.Context) ([]Candidate, time.Time, error)

func (fn sourceFunc) FreshCandidates(ctx context.Context) ([]Candidate, time.Time, error) {
	return fn(ctx)
}

func candidates(urls ...*url.URL) []Candidate {
	items := make([]Candidate, len(urls))
	for i, u := range urls {
		items[i] = Candidate{URL: u}
	}
	return items
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
