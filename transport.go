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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxErrorBodySize is how much of the body of a 5xx response is kept when
// it is returned as the final response of a round trip.
const maxErrorBodySize = 64 << 10

// NewTransport returns a round tripper that sends every request to the
// targets of the given client's service, as described by
// [Client.Execute]. For each attempt, the scheme and host of the request
// URL are replaced by those of the endpoint, the endpoint's path is
// prepended to the request's path, and the endpoint's query parameters
// come before the request's.
//
// An attempt fails if the base round tripper returns an error or a
// response with a 5xx status code. If the last attempt got such a
// response, it is returned with its body truncated to 64KiB. Requests
// with a body can only be sent to more than one target if the request's
// GetBody field is set; otherwise later attempts fail with
// [ErrBodyNotReplayable].
//
// If base is nil, a pooled transport instrumented with OpenTelemetry is
// used.
func NewTransport(client *Client, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	}
	return &transport{client: client, base: base}
}

type transport struct {
	client *Client
	base   http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var (
		attempts int
		lastResp *http.Response
	)
	resp, err := ExecuteValue(req.Context(), t.client, func(ctx context.Context, endpoint *url.URL) (*http.Response, error) {
		lastResp = nil
		outReq, err := prepareRequest(ctx, req, endpoint, attempts)
		attempts++
		if err != nil {
			return nil, err
		}
		resp, err := t.base.RoundTrip(outReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			lastResp = bufferResponse(resp)
			return nil, fmt.Errorf("%s responded with status %q", endpoint.Host, resp.Status)
		}
		return resp, nil
	})
	if err != nil {
		if lastResp != nil {
			return lastResp, nil
		}
		return nil, err
	}
	return resp, nil
}

// prepareRequest returns a copy of req to be sent to the given endpoint.
func prepareRequest(ctx context.Context, req *http.Request, endpoint *url.URL, attempt int) (*http.Request, error) {
	outReq := req.Clone(ctx)
	outReq.URL.Scheme = endpoint.Scheme
	outReq.URL.Host = endpoint.Host
	outReq.URL.Path = joinPaths(endpoint.Path, req.URL.Path)
	outReq.URL.RawPath = ""
	outReq.URL.RawQuery = joinQueries(endpoint.RawQuery, req.URL.RawQuery)
	outReq.Host = ""
	if attempt > 0 && req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, ErrBodyNotReplayable
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBodyNotReplayable, err)
		}
		outReq.Body = body
	}
	return outReq, nil
}

func joinPaths(prefix, path string) string {
	switch {
	case path == "":
		return prefix
	case strings.HasSuffix(prefix, "/") && strings.HasPrefix(path, "/"):
		return prefix + path[1:]
	case !strings.HasSuffix(prefix, "/") && !strings.HasPrefix(path, "/"):
		return prefix + "/" + path
	default:
		return prefix + path
	}
}

// joinQueries puts the endpoint's query parameters before the request's.
func joinQueries(endpointQuery, query string) string {
	if endpointQuery == "" || query == "" {
		return endpointQuery + query
	}
	return endpointQuery + "&" + query
}

// bufferResponse reads what is kept of the body of resp, closes it and
// returns a response that carries the kept bytes instead.
func bufferResponse(resp *http.Response) *http.Response {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	buffered := *resp
	buffered.Body = io.NopCloser(bytes.NewReader(body))
	buffered.ContentLength = int64(len(body))
	buffered.Header = resp.Header.Clone()
	buffered.Header.Del("Content-Length")
	return &buffered
}
