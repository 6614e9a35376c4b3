// Copyright (C) 2026 Mendci Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"context"
	"errors"
	"sync"
)

// MockClient is a scripted Client for tests.
type MockClient struct {
	mu sync.Mutex

	// Replies are returned in order; when exhausted, Complete errors.
	Replies []string

	// CompleteFunc overrides Complete entirely when non-nil.
	CompleteFunc func(ctx context.Context, request Request) (*Response, error)

	// Calls records every request.
	Calls []Request

	next int
}

// NewMockClient creates a mock returning the given replies in order.
func NewMockClient(replies ...string) *MockClient {
	return &MockClient{Replies: replies}
}

// Name implements Client.
func (m *MockClient) Name() string { return "mock" }

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, request Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, request)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, request)
	}
	if m.next >= len(m.Replies) {
		return nil, errors.New("mock assistant: no more scripted replies")
	}
	reply := m.Replies[m.next]
	m.next++
	return &Response{Content: reply}, nil
}

// CallCount returns the number of Complete calls.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
