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

// Package resolver provides the SRV record lookup used by a client to
// discover the targets of a service. Resolution is the process of turning a
// service name, such as "_http._tcp.example.com", into a set of records,
// each naming a target host and port along with a priority and a weight.
//
// It contains the core interface ([Resolver]) that can be implemented to
// plug in any resolution backend. A resolver answers a single lookup at a
// time and reports how long its answer remains valid; the client caches the
// answer for that long and asks again once it expires.
//
// # Implementations
//
// This package contains three implementations:
//
//   - [NewDNSResolver] uses a [net.Resolver]. Because net.Resolver does not
//     expose record TTLs, answers are valid for a fixed duration.
//   - [NewUnicastResolver] sends queries directly to the given name servers
//     and honors the TTLs of the returned records.
//   - [NewStaticResolver] always returns the same records.
//
// Any function with the right signature can be used as a resolver via
// [ResolverFunc].
//
// # Ordering
//
// Resolvers return records in the order the backend produced them. The
// [NewOrderedResolver] decorator sorts them per RFC 2782 instead: ascending
// by priority and randomly, in proportion to their weights, within each
// priority. This is what the client uses by default, so that the first
// record is always one of the most preferred targets.
package resolver
