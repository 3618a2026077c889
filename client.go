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
	"context"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bufbuild/srvlb/internal"
	"github.com/bufbuild/srvlb/policy"
	"github.com/bufbuild/srvlb/resolver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/bufbuild/srvlb"

// Operation is performed by a client on a single endpoint. It returns nil
// if it succeeded, in which case no other endpoint is tried.
//
// The endpoint is the client's to give away: the operation may modify it.
type Operation func(ctx context.Context, endpoint *url.URL) error

// ClientOption is an option used to customize the behavior of a Client.
type ClientOption interface {
	apply(*clientOptions)
}

// WithAllowedHosts restricts the targets a client uses to the given hosts.
// Each host is either an IPv4 address, an IPv6 address (optionally in
// brackets) or a domain name. A target whose host is an IP address is
// allowed if it is exactly one of the given addresses of the same family.
// Any other target is allowed if its host name ends with one of the given
// domain names; the comparison is case-sensitive.
//
// Targets that are not allowed are dropped when the SRV records are
// resolved. The fallback URL is never subject to this check. If no
// WithAllowedHosts option is used, all targets are allowed. If it is used
// without any hosts, no target is allowed, and only the fallback is ever
// used.
func WithAllowedHosts(hosts ...string) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.allowedHosts = append(opts.allowedHosts, hosts...)
		opts.restrictHosts = true
	})
}

// WithResolver configures the resolver used to look up SRV records. If no
// WithResolver option is used, the client uses a [net.DefaultResolver]
// with results valid for 5 minutes, sorted per RFC 2782 (see
// [resolver.NewOrderedResolver]).
func WithResolver(res resolver.Resolver) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.resolver = res
	})
}

// WithPolicy configures the policy used to order targets. If no WithPolicy
// option is used, the client uses a new [policy.Affinity].
func WithPolicy(pol policy.Policy) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.policy = pol
	})
}

// WithScheme configures the URL scheme of the endpoints built from SRV
// records. If no WithScheme option is used, "https" is used.
func WithScheme(scheme string) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.scheme = scheme
	})
}

// WithPathPrefix configures the path of the endpoints built from SRV
// records. If no WithPathPrefix option is used, "/" is used.
func WithPathPrefix(prefix string) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.pathPrefix = prefix
	})
}

// WithLogger configures the logger a client reports its activity to. If no
// WithLogger option is used, nothing is logged.
func WithLogger(logger *zap.Logger) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.logger = logger
	})
}

// WithTracerProvider configures the provider of the tracer used to trace
// executions. If no WithTracerProvider option is used, the global provider
// is used.
func WithTracerProvider(provider trace.TracerProvider) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.tracerProvider = provider
	})
}

// Client performs operations on the targets of a service located by SRV
// records.
//
// A client looks up the records of its service when it is first used and
// caches the resulting targets until the lookup result expires. For every
// execution, its policy decides the order in which the targets are tried.
// A client is safe for concurrent use and should be reused to benefit from
// its cache.
type Client struct {
	service  string
	fallback *url.URL
	allow    *allowList
	resolver resolver.Resolver
	policy   policy.Policy
	builder  endpointBuilder
	logger   *zap.Logger
	tracer   trace.Tracer
	clock    internal.Clock

	// +checkatomic
	cache atomic.Pointer[policy.Cache]
}

var _ policy.Source = (*Client)(nil)

// NewClient returns a client for the service located by the given SRV name,
// such as "_http._tcp.example.com". The fallback URL is used when the
// records cannot be resolved or when every target fails. It must not be
// nil.
func NewClient(service string, fallback *url.URL, options ...ClientOption) *Client {
	if fallback == nil {
		panic("srvlb: nil fallback URL")
	}
	var opts clientOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	opts.applyDefaults()

	fallbackCopy := *fallback
	client := &Client{
		service:  service,
		fallback: &fallbackCopy,
		resolver: opts.resolver,
		policy:   opts.policy,
		builder: endpointBuilder{
			scheme:     opts.scheme,
			pathPrefix: opts.pathPrefix,
		},
		logger: opts.logger.With(zap.String("srv", service)),
		tracer: opts.tracerProvider.Tracer(tracerName),
		clock:  internal.NewRealClock(),
	}
	if opts.restrictHosts {
		client.allow = newAllowList(opts.allowedHosts)
	}
	client.cache.Store(policy.NewCache(nil, time.Time{}))
	return client
}

// Service returns the SRV name of the client's service.
func (c *Client) Service() string {
	return c.service
}

// Fallback returns a copy of the client's fallback URL.
func (c *Client) Fallback() *url.URL {
	fallback := *c.fallback
	return &fallback
}

// Cache returns the client's current cache, which may have expired.
func (c *Client) Cache() *policy.Cache {
	return c.cache.Load()
}

// FreshCandidates resolves the client's SRV records and turns them into
// candidate endpoints, returning them along with the instant until which
// they are valid. Records that cannot be turned into a URL, or whose host
// is not allowed, are skipped. The client's cache is left untouched.
func (c *Client) FreshCandidates(ctx context.Context) ([]policy.Candidate, time.Time, error) {
	records, validUntil, err := c.resolver.LookupSRV(ctx, c.service)
	if err != nil {
		return nil, time.Time{}, &LookupError{Name: c.service, Err: err}
	}
	candidates := make([]policy.Candidate, 0, len(records))
	for _, record := range records {
		endpoint, err := c.builder.build(record)
		if err != nil {
			c.logger.Debug("failed to parse an SRV record", zap.Error(err))
			continue
		}
		if c.allow != nil && !c.allow.allows(endpoint) {
			c.logger.Debug("rejecting SRV record because its host is not allowed",
				zap.Stringer("uri", endpoint))
			continue
		}
		candidates = append(candidates, policy.Candidate{
			URL:      endpoint,
			Priority: record.Priority,
			Weight:   record.Weight,
		})
	}
	return candidates, validUntil, nil
}

// Execute performs op on the client's targets, one at a time, in the order
// recommended by the client's policy, until it succeeds. If every target
// fails, or if the SRV records cannot be resolved, op is performed on the
// fallback URL and its result is returned.
//
// The returned error is always an error returned by op, from the last
// attempt. Lookup failures are not reported, other than through the
// client's logger.
//
// Execute does not impose any timeout: op should honor the given context.
func (c *Client) Execute(ctx context.Context, op Operation) error {
	ctx, span := c.tracer.Start(ctx, "srvlb.Execute", trace.WithAttributes(
		attribute.String("srv.name", c.service),
	))
	defer span.End()

	err := c.execute(ctx, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// ExecuteValue is like [Client.Execute], for operations that produce a
// value. It returns the value of the first successful attempt, or the zero
// value and the error of the last attempt.
func ExecuteValue[T any](
	ctx context.Context,
	client *Client,
	op func(ctx context.Context, endpoint *url.URL) (T, error),
) (T, error) {
	var result T
	err := client.Execute(ctx, func(ctx context.Context, endpoint *url.URL) error {
		value, err := op(ctx, endpoint)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}

func (c *Client) execute(ctx context.Context, op Operation) error {
	cache, err := c.validCache(ctx)
	if err != nil {
		c.logger.Debug("no valid cache", zap.Error(err))
		return c.attempt(ctx, op, c.Fallback(), true)
	}

	items := cache.Items()
	if len(items) == 0 {
		c.logger.Debug(ErrNoTargets.Error())
	}
	for _, idx := range c.policy.Order(items) {
		candidate := items[idx]
		if err := c.attempt(ctx, op, candidate.Endpoint(), false); err != nil {
			c.policy.NoteFailure(candidate.Endpoint())
			continue
		}
		c.policy.NoteSuccess(candidate.Endpoint())
		return nil
	}
	return c.attempt(ctx, op, c.Fallback(), true)
}

func (c *Client) attempt(ctx context.Context, op Operation, endpoint *url.URL, fallback bool) error {
	uri := endpoint.String()
	ctx, span := c.tracer.Start(ctx, "srvlb.Attempt", trace.WithAttributes(
		attribute.String("srv.endpoint", uri),
		attribute.Bool("srv.fallback", fallback),
	))
	defer span.End()

	if err := op(ctx, endpoint); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Info("execution attempt failed",
			zap.String("uri", uri), zap.Bool("fallback", fallback), zap.Error(err))
		return err
	}
	c.logger.Info("execution attempt succeeded",
		zap.String("uri", uri), zap.Bool("fallback", fallback))
	return nil
}

// validCache returns the client's cache, refreshing it first if it has
// expired.
func (c *Client) validCache(ctx context.Context) (*policy.Cache, error) {
	if cache := c.cache.Load(); cache.ValidAt(c.clock.Now()) {
		return cache, nil
	}
	return c.refreshCache(ctx)
}

// refreshCache builds a new cache with the client's policy and publishes
// it. Concurrent refreshes are not coordinated: the last one to finish
// wins.
func (c *Client) refreshCache(ctx context.Context) (*policy.Cache, error) {
	ctx, span := c.tracer.Start(ctx, "srvlb.Refresh")
	defer span.End()

	cache, err := c.policy.Refresh(ctx, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if cache == nil {
		cache = policy.NewCache(nil, time.Time{})
	}
	span.SetAttributes(attribute.Int("srv.candidates", cache.Len()))
	c.logger.Debug("refreshed SRV targets",
		zap.Int("candidates", cache.Len()), zap.Time("valid_until", cache.Expiry()))
	c.cache.Store(cache)
	return cache, nil
}

type clientOptionFunc func(*clientOptions)

func (f clientOptionFunc) apply(opts *clientOptions) {
	f(opts)
}

type clientOptions struct {
	allowedHosts   []string
	restrictHosts  bool
	resolver       resolver.Resolver
	policy         policy.Policy
	scheme         string
	pathPrefix     string
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
}

func (opts *clientOptions) applyDefaults() {
	if opts.resolver == nil {
		opts.resolver = resolver.NewOrderedResolver(resolver.NewDNSResolver(nil, 0))
	}
	if opts.policy == nil {
		opts.policy = policy.NewAffinity()
	}
	if opts.scheme == "" {
		opts.scheme = "https"
	}
	if !strings.HasPrefix(opts.pathPrefix, "/") {
		opts.pathPrefix = "/" + opts.pathPrefix
	}
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}
	if opts.tracerProvider == nil {
		opts.tracerProvider = otel.GetTracerProvider()
	}
}
