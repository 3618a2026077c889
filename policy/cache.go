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

import "time"

// Cache is an immutable snapshot of candidates along with the instant they
// expire. A cache is never modified once created: a refresh always produces
// a new Cache that replaces the old one.
type Cache struct {
	items  []Candidate
	expiry time.Time
}

// NewCache returns a cache holding items until expiry. The cache takes
// ownership of items; callers must not modify the slice afterwards.
func NewCache(items []Candidate, expiry time.Time) *Cache {
	return &Cache{items: items, expiry: expiry}
}

// Valid reports whether the cache has not yet expired.
func (c *Cache) Valid() bool {
	return c.ValidAt(time.Now())
}

// ValidAt reports whether the cache is still valid at the given instant.
func (c *Cache) ValidAt(now time.Time) bool {
	return c != nil && now.Before(c.expiry)
}

// Items returns the cached candidates. The returned slice must not be
// modified.
func (c *Cache) Items() []Candidate {
	if c == nil {
		return nil
	}
	return c.items
}

// Len returns the number of cached candidates.
func (c *Cache) Len() int {
	return len(c.Items())
}

// Expiry returns the instant at which the cache becomes invalid.
func (c *Cache) Expiry() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.expiry
}
