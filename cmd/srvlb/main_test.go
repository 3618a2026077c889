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

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bufbuild/srvlb"
	"github.com/bufbuild/srvlb/internal/config"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

const testService = "_http._tcp.example.com."

func TestResolve(t *testing.T) {
	t.Parallel()
	primary := newHTTPServer(t, "primary", http.StatusOK)
	secondary := newHTTPServer(t, "secondary", http.StatusOK)
	cfg := newConfig(t, newFixture(t, primary, secondary), "http://fallback.invalid")

	var out bytes.Buffer
	require.NoError(t, resolve(context.Background(), &out, cfg))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"ENDPOINT", "PRIORITY", "WEIGHT"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{primary.URL + "/", "1", "10"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{secondary.URL + "/", "2", "10"}, strings.Fields(lines[2]))
	assert.True(t, strings.HasPrefix(lines[3], "valid until "), lines[3])

	cfg.SRV.Policy = config.PolicyWeighted
	out.Reset()
	require.NoError(t, resolve(context.Background(), &out, cfg))
	lines = strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{primary.URL + "/", "1", "10"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{secondary.URL + "/", "2", "10"}, strings.Fields(lines[2]))
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()
	fixture := newFixture(t)
	cfg := newConfig(t, fixture, "http://fallback.invalid")
	err := resolve(context.Background(), io.Discard, cfg)
	require.ErrorIs(t, err, srvlb.ErrNoTargets)

	cfg.SRV.Service = "_http._tcp.missing.example.com."
	err = resolve(context.Background(), io.Discard, cfg)
	var lookupErr *srvlb.LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, cfg.SRV.Service, lookupErr.Name)
}

func TestGet(t *testing.T) {
	t.Parallel()
	failing := newHTTPServer(t, "failing", http.StatusServiceUnavailable)
	working := newHTTPServer(t, "working", http.StatusOK)
	cfg := newConfig(t, newFixture(t, failing, working), "http://fallback.invalid")

	var out bytes.Buffer
	require.NoError(t, get(context.Background(), &out, cfg, "/hello?x=1", http.DefaultTransport))
	assert.Equal(t, "working GET /hello?x=1", out.String())

	// Only the fallback is left, and it fails too.
	cfg = newConfig(t, newFixture(t), failing.URL)
	out.Reset()
	err := get(context.Background(), &out, cfg, "/hello", http.DefaultTransport)
	require.ErrorIs(t, err, errRequestFailed)
	assert.Equal(t, "failing GET /hello", out.String())
}

func TestProbe(t *testing.T) {
	t.Parallel()
	failing := newHTTPServer(t, "failing", http.StatusInternalServerError)
	working := newHTTPServer(t, "working", http.StatusOK)
	cfg := newConfig(t, newFixture(t, working, failing), "http://fallback.invalid")

	var out bytes.Buffer
	err := probe(context.Background(), &out, cfg, 2, http.DefaultTransport)
	require.ErrorIs(t, err, errRequestFailed)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), failing.URL)
	output := out.String()
	assert.Contains(t, output, "OK    "+working.URL+"/  200 OK")
	assert.Contains(t, output, "FAIL  "+failing.URL+"/")

	cfg = newConfig(t, newFixture(t, working), "http://fallback.invalid")
	out.Reset()
	require.NoError(t, probe(context.Background(), &out, cfg, 0, http.DefaultTransport))
}

// newFixture starts a DNS server answering SRV queries for testService with
// one record per server, with increasing priorities. Any other name does
// not exist.
func newFixture(t *testing.T, servers ...*httptest.Server) string {
	t.Helper()
	var answers []dns.RR
	for i, server := range servers {
		serverURL, err := url.Parse(server.URL)
		require.NoError(t, err)
		port, err := strconv.ParseUint(serverURL.Port(), 10, 16)
		require.NoError(t, err)
		answers = append(answers, &dns.SRV{
			Hdr: dns.RR_Header{
				Name:   testService,
				Rrtype: dns.TypeSRV,
				Class:  dns.ClassINET,
				Ttl:    60,
			},
			Priority: uint16(i + 1), //nolint:gosec
			Weight:   10,
			Port:     uint16(port),
			Target:   dns.Fqdn(serverURL.Hostname()),
		})
	}
	return startDNSServer(t, func(w dns.ResponseWriter, req *dns.Msg) {
		reply := new(dns.Msg)
		reply.SetReply(req)
		if req.Question[0].Name == testService {
			reply.Answer = answers
		} else {
			reply.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(reply)
	})
}

func startDNSServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        conn,
		Handler:           handler,
		NotifyStartedFunc: func() { close(started) },
	}
	go func() {
		_ = server.ActivateAndServe()
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dns server did not start")
	}
	t.Cleanup(func() {
		_ = server.Shutdown()
	})
	return conn.LocalAddr().String()
}

func newConfig(t *testing.T, dnsServer, fallback string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		SRV: config.SRVConfig{
			Service:    testService,
			Fallback:   fallback,
			Scheme:     "http",
			PathPrefix: "/",
			Policy:     config.PolicyAffinity,
		},
		DNS: config.DNSConfig{
			Servers: []string{dnsServer},
			Timeout: time.Second,
		},
		Timeout: 5 * time.Second,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func newHTTPServer(t *testing.T, name string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, "%s %s %s", name, r.Method, r.URL.RequestURI())
	}))
	t.Cleanup(server.Close)
	return server
}
