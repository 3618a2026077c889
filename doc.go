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

// Package srvlb locates the servers of a service through DNS SRV records
// and spreads operations over them on the client side.
//
// A [Client] is created for one SRV name, such as
// "_http._tcp.example.com", and a fallback URL. Every call to
// [Client.Execute] performs an operation on the targets of the service,
// one at a time, until the operation succeeds. The order in which the
// targets are tried is decided by a [policy.Policy]; the fallback URL is
// only used once every target has failed, or when the SRV records cannot be
// resolved at all.
//
// Resolved targets are cached until the lookup result expires, so most
// executions do not touch DNS. The cache is refreshed lazily by the first
// execution that finds it expired.
//
// # Default Behavior
//
// Without any options, a client:
//
//  1. Resolves SRV records with [net.DefaultResolver] and considers the
//     result valid for 5 minutes, since the standard resolver does not
//     report record TTLs. Use [resolver.NewUnicastResolver] with
//     [WithResolver] to honor the TTLs sent by a DNS server.
//
//  2. Sorts the records per RFC 2782, so that targets with the lowest
//     priority value come first, in a weighted random order.
//
//  3. Uses the [policy.Affinity] policy: the first target is used until an
//     operation fails on it, and then the last target an operation
//     succeeded on is preferred. Use [policy.NewWeighted] with
//     [WithPolicy] to pick a new weighted random order for every execution.
//
//  4. Builds endpoints of the form "https://target:port/". Use
//     [WithScheme] and [WithPathPrefix] to change them.
//
// # HTTP
//
// [NewTransport] wraps a client into an [http.RoundTripper] that sends
// requests to the targets of the service, so that an [http.Client] can be
// used with it:
//
//	fallback, _ := url.Parse("https://api.example.com")
//	client := srvlb.NewClient("_https._tcp.api.example.com", fallback,
//	    srvlb.WithAllowedHosts("example.com"),
//	)
//	httpClient := &http.Client{Transport: srvlb.NewTransport(client, nil)}
//	resp, err := httpClient.Get("https://api.example.com/v1/status")
//
// The host in request URLs is ignored: it is replaced by the host of each
// target in turn.
package srvlb
