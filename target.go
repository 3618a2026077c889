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
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/bufbuild/srvlb/resolver"
)

var (
	errEmptyTarget = errors.New("empty target")
	errRootTarget  = errors.New(`target "." means the service is not available`)
	errZeroPort    = errors.New("port 0 is not usable")
	errInvalidHost = errors.New("invalid host")
)

// endpointBuilder turns SRV records into endpoint URLs of the form
// "scheme://target:port/prefix".
type endpointBuilder struct {
	scheme     string
	pathPrefix string
}

func (b endpointBuilder) build(record resolver.Record) (*url.URL, error) {
	host, err := recordHost(record.Target)
	if err != nil {
		return nil, &RecordParsingError{Record: record, Err: err}
	}
	if record.Port == 0 {
		return nil, &RecordParsingError{Record: record, Err: errZeroPort}
	}
	endpoint := &url.URL{
		Scheme: b.scheme,
		Host:   net.JoinHostPort(host, strconv.FormatUint(uint64(record.Port), 10)),
		Path:   b.pathPrefix,
	}
	// Round-trip the result, so that a target that contains URL syntax
	// (like "evil.com/path" or "user@host") cannot masquerade as a host.
	parsed, err := url.Parse(endpoint.String())
	if err != nil {
		return nil, &RecordParsingError{Record: record, Err: err}
	}
	if parsed.Hostname() != host || parsed.Port() != endpoint.Port() {
		return nil, &RecordParsingError{Record: record, Err: errInvalidHost}
	}
	return parsed, nil
}

func recordHost(target string) (string, error) {
	switch target {
	case "":
		return "", errEmptyTarget
	case ".":
		return "", errRootTarget
	}
	host := strings.TrimSuffix(target, ".")
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Zone() != "" {
			return "", errInvalidHost
		}
		return addr.String(), nil
	}
	if host == "" || strings.HasPrefix(host, ".") || strings.ContainsAny(host, " /\\@?#%[]:") {
		return "", errInvalidHost
	}
	return host, nil
}

// allowList restricts endpoints to hosts that are either one of the listed
// IP addresses or end with one of the listed domains.
type allowList struct {
	ipv4    []netip.Addr
	ipv6    []netip.Addr
	domains []string
}

func newAllowList(hosts []string) *allowList {
	list := &allowList{}
	for _, host := range hosts {
		trimmed := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
		if addr, err := netip.ParseAddr(trimmed); err == nil {
			if addr.Is4() {
				list.ipv4 = append(list.ipv4, addr)
			} else {
				list.ipv6 = append(list.ipv6, addr)
			}
			continue
		}
		// Targets lose their trailing dot, so domains must too.
		if domain := strings.TrimSuffix(host, "."); domain != "" {
			list.domains = append(list.domains, domain)
		}
	}
	return list
}

func (l *allowList) allows(endpoint *url.URL) bool {
	host := endpoint.Hostname()
	if host == "" {
		return false
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		candidates := l.ipv6
		if addr.Is4() {
			candidates = l.ipv4
		}
		for _, allowed := range candidates {
			if addr == allowed {
				return true
			}
		}
		return false
	}
	for _, domain := range l.domains {
		if strings.HasSuffix(host, domain) {
			return true
		}
	}
	return false
}
