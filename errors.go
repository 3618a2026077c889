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

package srvlb

import (
	"errors"
	"fmt"

	"github.com/bufbuild/srvlb/resolver"
)

var (
	// ErrNoTargets is returned when a service resolves to no usable targets.
	// Execute never returns it: with no targets, only the fallback is tried.
	ErrNoTargets = errors.New("no SRV targets to use")
	// ErrBodyNotReplayable is returned by a Transport when a request must be
	// sent to another target but its body cannot be read a second time.
	ErrBodyNotReplayable = errors.New("request body cannot be replayed for another target")
)

// LookupError is returned when the SRV records of a service could not be
// resolved.
type LookupError struct {
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("SRV lookup of %q: %v", e.Name, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// RecordParsingError is reported when a single SRV record cannot be turned
// into an endpoint. Such records are skipped.
type RecordParsingError struct {
	Record resolver.Record
	Err    error
}

func (e *RecordParsingError) Error() string {
	return fmt.Sprintf("building URL from SRV record %q port %d: %v", e.Record.Target, e.Record.Port, e.Err)
}

func (e *RecordParsingError) Unwrap() error {
	return e.Err
}
