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
	"fmt"
	"net"
	"time"

	"github.com/bufbuild/srvlb/internal"
	"github.com/miekg/dns"
)

const (
	defaultUnicastTimeout = 2 * time.Second
	defaultDNSPort        = "53"
)

var (
	// ErrNoServers is returned when a unicast resolver has no name servers
	// to query.
	ErrNoServers = errors.New("no DNS servers configured")
	// ErrInvalidName is returned when the looked up service name is not a
	// valid domain name.
	ErrInvalidName = errors.New("invalid SRV name")
)

// ResponseError is returned by a unicast resolver when a name server answers
// with a response code other than NOERROR.
type ResponseError struct {
	Name   string
	Server string
	Rcode  int
}

func (e *ResponseError) Error() string {
	rcode, ok := dns.RcodeToString[e.Rcode]
	if !ok {
		rcode = fmt.Sprintf("RCODE%d", e.Rcode)
	}
	return fmt.Sprintf("SRV lookup of %q via %s: %s", e.Name, e.Server, rcode)
}

// NotFound reports whether the name does not exist.
func (e *ResponseError) NotFound() bool {
	return e.Rcode == dns.RcodeNameError
}

// UnicastOption is an option used to customize a resolver created with
// NewUnicastResolver.
type UnicastOption interface {
	apply(*unicastResolver)
}

// WithTimeout limits how long a single exchange with a name server may take.
// If zero or no WithTimeout option is used, a default of 2 seconds is used.
func WithTimeout(timeout time.Duration) UnicastOption {
	return unicastOptionFunc(func(r *unicastResolver) {
		r.timeout = timeout
	})
}

// WithDefaultTTL configures how long an answer without usable TTL values
// (for example, an empty answer without an SOA record) remains valid. If
// zero or no WithDefaultTTL option is used, a default of 5 minutes is used.
func WithDefaultTTL(ttl time.Duration) UnicastOption {
	return unicastOptionFunc(func(r *unicastResolver) {
		r.defaultTTL = ttl
	})
}

// NewUnicastResolver creates a resolver that sends SRV queries directly to
// the given name servers, each in "host:port" or "host" form (port 53 is
// assumed when omitted). Servers are tried in order until one answers.
//
// Unlike NewDNSResolver, the validity of the result is derived from the
// TTLs of the returned records: an answer is valid until the smallest TTL
// among its SRV records elapses. Empty answers are valid for the negative
// caching TTL from the SOA record in the authority section, if present.
func NewUnicastResolver(servers []string, options ...UnicastOption) Resolver {
	res := &unicastResolver{
		servers: make([]string, len(servers)),
		clock:   internal.NewRealClock(),
	}
	for i, server := range servers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, defaultDNSPort)
		}
		res.servers[i] = server
	}
	for _, opt := range options {
		opt.apply(res)
	}
	res.applyDefaults()
	return res
}

// NewUnicastResolverFromResolvConf creates a unicast resolver that uses the
// name servers listed in the given resolv.conf(5) file, such as
// "/etc/resolv.conf".
func NewUnicastResolverFromResolvConf(path string, options ...UnicastOption) (Resolver, error) {
	conf, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	servers := make([]string, len(conf.Servers))
	for i, server := range conf.Servers {
		servers[i] = net.JoinHostPort(server, conf.Port)
	}
	if conf.Timeout > 0 {
		options = append([]UnicastOption{WithTimeout(time.Duration(conf.Timeout) * time.Second)}, options...)
	}
	return NewUnicastResolver(servers, options...), nil
}

type unicastOptionFunc func(*unicastResolver)

func (f unicastOptionFunc) apply(r *unicastResolver) {
	f(r)
}

type unicastResolver struct {
	servers    []string
	timeout    time.Duration
	defaultTTL time.Duration
	clock      internal.Clock
}

func (r *unicastResolver) applyDefaults() {
	if r.timeout == 0 {
		r.timeout = defaultUnicastTimeout
	}
	if r.defaultTTL == 0 {
		r.defaultTTL = defaultTTL
	}
}

func (r *unicastResolver) LookupSRV(ctx context.Context, name string) ([]Record, time.Time, error) {
	if _, ok := dns.IsDomainName(name); !ok || name == "" {
		return nil, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if len(r.servers) == 0 {
		return nil, time.Time{}, ErrNoServers
	}

	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(name), dns.TypeSRV)

	var errs []error
	for _, server := range r.servers {
		resp, err := r.exchange(ctx, query, server)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			// An authoritative "no such name" is an answer, not a server
			// failure, so there is no point in asking the next server.
			respErr := &ResponseError{Name: name, Server: server, Rcode: resp.Rcode}
			if respErr.NotFound() {
				return nil, time.Time{}, respErr
			}
			errs = append(errs, respErr)
			continue
		}
		records, ttl := r.parseResponse(resp)
		return records, r.clock.Now().Add(ttl), nil
	}
	return nil, time.Time{}, errors.Join(errs...)
}

func (r *unicastResolver) exchange(ctx context.Context, query *dns.Msg, server string) (*dns.Msg, error) {
	client := &dns.Client{Net: "udp", Timeout: r.timeout}
	resp, _, err := client.ExchangeContext(ctx, query, server)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		client.Net = "tcp"
		resp, _, err = client.ExchangeContext(ctx, query, server)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (r *unicastResolver) parseResponse(resp *dns.Msg) ([]Record, time.Duration) {
	var (
		records = make([]Record, 0, len(resp.Answer))
		minTTL  uint32
		haveTTL bool
	)
	for _, rr := range resp.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			// CNAME chains and the like may precede the SRV records.
			continue
		}
		records = append(records, Record{
			Target:   srv.Target,
			Port:     srv.Port,
			Priority: srv.Priority,
			Weight:   srv.Weight,
		})
		if !haveTTL || srv.Hdr.Ttl < minTTL {
			minTTL = srv.Hdr.Ttl
			haveTTL = true
		}
	}
	if !haveTTL {
		for _, rr := range resp.Ns {
			if soa, ok := rr.(*dns.SOA); ok {
				minTTL = min(soa.Hdr.Ttl, soa.Minttl)
				haveTTL = true
				break
			}
		}
	}
	if !haveTTL {
		return records, r.defaultTTL
	}
	return records, time.Duration(minTTL) * time.Second
}
