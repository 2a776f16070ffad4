// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package httpxtest

import (
	"net/http"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// Exchange is one scripted request and its answer. Empty Method or URL match
// any request.
type Exchange struct {
	Method   string
	URL      string
	Response *http.Response
	Error    error
}

// MockClient answers requests with Exchanges, in order, and records the
// requests it received.
type MockClient struct {
	T         testing.TB
	Exchanges []Exchange

	mu       sync.Mutex
	requests []*http.Request
}

// NewMockClient returns a MockClient that fails t on unexpected requests and
// on exchanges left unused when the test ends.
func NewMockClient(t testing.TB, exchanges ...Exchange) *MockClient {
	m := &MockClient{T: t, Exchanges: exchanges}
	t.Cleanup(func() {
		if n := m.Pending(); n > 0 {
			t.Errorf("%d scripted request(s) were never sent", n)
		}
	})
	return m
}

// Do implements httpx.BasicClient.
func (m *MockClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.requests)
	m.requests = append(m.requests, req)
	if n >= len(m.Exchanges) {
		m.T.Errorf("unexpected request: %s %s", req.Method, req.URL)
		return nil, errors.New("unexpected request")
	}
	ex := m.Exchanges[n]
	if ex.Method != "" {
		if diff := cmp.Diff(ex.Method, req.Method); diff != "" {
			m.T.Errorf("request %d method mismatch (-want +got):\n%s", n, diff)
		}
	}
	if ex.URL != "" {
		if diff := cmp.Diff(ex.URL, req.URL.String()); diff != "" {
			m.T.Errorf("request %d URL mismatch (-want +got):\n%s", n, diff)
		}
	}
	if ex.Response != nil && ex.Response.Request == nil {
		ex.Response.Request = req
	}
	return ex.Response, ex.Error
}

// Requests returns the requests received so far.
func (m *MockClient) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// Pending returns the number of exchanges not yet used.
func (m *MockClient) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return max(len(m.Exchanges)-len(m.requests), 0)
}
