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

// Package clocktest exists to allow interoperability with our Clock interface
// and the Clockwork interfaces. Keeping the adapter here means tests can
// drive validity windows without importing clockwork into non-test code.
package clocktest

import (
	"time"

	"github.com/bufbuild/srvlb/internal"
	"github.com/jonboulle/clockwork"
)

// FakeClock provides an interface for a clock which can be manually advanced
// through time. *[clockwork.FakeClock] implements it.
type FakeClock interface {
	internal.Clock
	Advance(d time.Duration)
}

var _ FakeClock = (*clockwork.FakeClock)(nil)

// NewFakeClock creates a new FakeClock using Clockwork.
func NewFakeClock() FakeClock {
	return clockwork.NewFakeClock()
}
