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

package internal

import (
	"cmp"
	"math/rand"
)

// SortKey orders SRV targets per RFC 2782: ascending by priority, then
// descending by a weight scaled with a random 16-bit draw.
type SortKey struct {
	Priority uint16
	Weight   uint32
}

// NewSortKey computes the sort key for a target with the given priority and
// weight. A new random value is drawn from rnd on every call.
func NewSortKey(priority, weight uint16, rnd *rand.Rand) SortKey {
	draw := uint32(rnd.Intn(1 << 16))
	return SortKey{
		Priority: priority,
		Weight:   uint32(weight) * draw,
	}
}

// Compare returns a negative number when k sorts before other, a positive
// number when it sorts after, and zero when they are equivalent.
func (k SortKey) Compare(other SortKey) int {
	if c := cmp.Compare(k.Priority, other.Priority); c != 0 {
		return c
	}
	// Larger randomized weights go first.
	return cmp.Compare(other.Weight, k.Weight)
}
