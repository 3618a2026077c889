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
	"errors"
	"net"
	"time"

	"github.com/bufbuild/srvlb/internal"
)

const defaultTTL = 5 * time.Minute

// malformedRecords is the message of the error net.Resolver reports along
// with the remaining records when some records have invalid target names.
const malformedRecords = "DNS response contained records which contain invalid names"

// Record holds the fields of a single SRV record, as defined in RFC 2782:
//
//	_Service._Proto.Name TTL Class SRV Priority Weight Port Target
//
// Records are never modified after a Resolver returns them.
type Record struct {
	// Target is the host name (or address literal) of the target host.
	Target string
	// Port is the port on the target host of the service.
	Port uint16
	// Priority of the target; lower values are more preferred.
	Priority uint16
	// Weight is the relative selection probability among records that
	// have the same priority.
	Weight uint16
}

// Resolver is an interface for types that look up SRV records.
type Resolver interface {
	// LookupSRV queries the records for the given fully-qualified service
	// name, such as "_http._tcp.example.com". Along with the records, it
	// returns the instant until which the result may be reused.
	//
	// Records are returned in whatever order the backend produced them.
	// Use NewOrderedResolver to get them in RFC 2782 order.
	LookupSRV(ctx context.Context, name string) (records []Record, validUntil time.Time, err error)
}

// ResolverFunc is a function that implements the Resolver interface.
type ResolverFunc func(ctx context.Context, name string) ([]Record, time.Time, error)

// LookupSRV implements Resolver by calling fn.
func (fn ResolverFunc) LookupSRV(ctx context.Context, name string) ([]Record, time.Time, error) {
	return fn(ctx, name)
}

// NewStaticResolver returns a resolver that always answers with the given
// records, regardless of the name being looked up. Each answer is valid for
// the given ttl. This is mostly useful for tests and for environments
// without SRV records, where a fixed target list is configured instead.
func NewStaticResolver(records []Record, ttl time.Duration) Resolver {
	return &staticResolver{
		records: records,
		ttl:     ttl,
		clock:   internal.NewRealClock(),
	}
}

type staticResolver struct {
	records []Record
	ttl     time.Duration
	clock   internal.Clock
}

func (r *staticResolver) LookupSRV(_ context.Context, _ string) ([]Record, time.Time, error) {
	records := make([]Record, len(r.records))
	copy(records, r.records)
	return records, r.clock.Now().Add(r.ttl), nil
}

// NewDNSResolver creates a new resolver that looks up SRV records using the
// given net.Resolver. If resolver is nil, net.DefaultResolver is used.
// Note that because net.Resolver does not expose the record TTL values, this
// resolver uses the fixed TTL provided in the ttl parameter. If ttl is not
// positive, a default of 5 minutes is used. Use NewUnicastResolver if the
// actual TTL of the records should be honored.
func NewDNSResolver(resolver *net.Resolver, ttl time.Duration) Resolver {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &dnsResolver{
		resolver: resolver,
		ttl:      ttl,
		clock:    internal.NewRealClock(),
	}
}

type dnsResolver struct {
	resolver *net.Resolver
	ttl      time.Duration
	clock    internal.Clock
}

func (r *dnsResolver) LookupSRV(ctx context.Context, name string) ([]Record, time.Time, error) {
	// With empty service and proto, net.Resolver looks up name directly.
	_, srvs, err := r.resolver.LookupSRV(ctx, "", "", name)
	if err != nil && !isPartialResult(err, len(srvs)) {
		return nil, time.Time{}, err
	}
	records := make([]Record, len(srvs))
	for i, srv := range srvs {
		records[i] = Record{
			Target:   srv.Target,
			Port:     srv.Port,
			Priority: srv.Priority,
			Weight:   srv.Weight,
		}
	}
	return records, r.clock.Now().Add(r.ttl), nil
}

// isPartialResult reports whether err only means that net.Resolver dropped
// records with invalid target names. Such records are skipped, like any
// other malformed record.
func isPartialResult(err error, remaining int) bool {
	var dnsErr *net.DNSError
	if !errors.As(err, &dnsErr) {
		return false
	}
	return remaining > 0 || dnsErr.Err == malformedRecords
}
