/*
SPDX-License-Identifier: GPL-3.0-or-later

Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com

This file is part of GoSight.

GoSight is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GoSight is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GoSight. If not, see https://www.gnu.org/licenses/.
*/

package canary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport is a shared, in-memory Transport stub for every test in
// this package that needs one.
type fakeTransport struct {
	mu sync.Mutex

	nextToken     string
	getTokenErr   error
	getTokenCalls int

	keepAliveStatus int
	keepAliveBody   []byte
	keepAliveErr    error
	keepAliveCalls  int

	revokeErr   error
	revokeCalls int

	storeStatus int
	storeBody   []byte
	storeErr    error
	storeCalls  int
	lastStored  map[string][]sampleRow
}

func (f *fakeTransport) GetSessionToken(ctx context.Context, apiToken, clientID string, historians []string, timeoutMS int) (string, int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getTokenCalls++
	if f.getTokenErr != nil {
		return "", 0, nil, f.getTokenErr
	}
	return f.nextToken, 200, nil, nil
}

func (f *fakeTransport) KeepAlive(ctx context.Context, sessionToken string) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepAliveCalls++
	if f.keepAliveErr != nil {
		return 0, nil, f.keepAliveErr
	}
	status := f.keepAliveStatus
	if status == 0 {
		status = 200
	}
	return status, f.keepAliveBody, nil
}

func (f *fakeTransport) RevokeSessionToken(ctx context.Context, sessionToken string) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeCalls++
	return 200, nil, f.revokeErr
}

func (f *fakeTransport) StoreData(ctx context.Context, sessionToken string, properties map[string][]sampleRow) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeCalls++
	f.lastStored = properties
	status := f.storeStatus
	if status == 0 {
		status = 200
	}
	return status, f.storeBody, f.storeErr
}

func TestSessionManagerAcquiresTokenWhenAbsent(t *testing.T) {
	ft := &fakeTransport{nextToken: "tok-1"}
	s := NewSessionManager(ft, "api", "client", nil, 30000, time.Minute, 0)

	tok, err := s.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok != "tok-1" {
		t.Fatalf("token = %q, want tok-1", tok)
	}
	if ft.getTokenCalls != 1 {
		t.Fatalf("getTokenCalls = %d, want 1", ft.getTokenCalls)
	}

	// Second call within the keepalive idle window reuses the token
	// without a keepalive call.
	tok2, err := s.GetToken(context.Background())
	if err != nil || tok2 != "tok-1" {
		t.Fatalf("second GetToken = %q, %v", tok2, err)
	}
	if ft.keepAliveCalls != 0 {
		t.Fatalf("keepAliveCalls = %d, want 0", ft.keepAliveCalls)
	}
}

func TestSessionManagerKeepAliveTriggersAfterIdle(t *testing.T) {
	ft := &fakeTransport{nextToken: "tok-1"}
	s := NewSessionManager(ft, "api", "client", nil, 30000, 10*time.Millisecond, 0)

	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("second GetToken: %v", err)
	}
	if ft.keepAliveCalls != 1 {
		t.Fatalf("keepAliveCalls = %d, want 1", ft.keepAliveCalls)
	}
}

func TestSessionManagerKeepAliveSessionErrorReacquires(t *testing.T) {
	ft := &fakeTransport{nextToken: "tok-1", keepAliveStatus: 401}
	s := NewSessionManager(ft, "api", "client", nil, 30000, 10*time.Millisecond, 0)

	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("second GetToken: %v", err)
	}
	if ft.getTokenCalls != 2 {
		t.Fatalf("getTokenCalls = %d, want 2 (reacquire after invalidated keepalive)", ft.getTokenCalls)
	}
}

func TestSessionManagerInvalidateForcesReacquire(t *testing.T) {
	ft := &fakeTransport{nextToken: "tok-1"}
	s := NewSessionManager(ft, "api", "client", nil, 30000, time.Minute, 0)

	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	s.Invalidate()
	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken after invalidate: %v", err)
	}
	if ft.getTokenCalls != 2 {
		t.Fatalf("getTokenCalls = %d, want 2", ft.getTokenCalls)
	}
}

func TestSessionManagerRevokeSwallowsErrors(t *testing.T) {
	ft := &fakeTransport{nextToken: "tok-1", revokeErr: errors.New("boom")}
	s := NewSessionManager(ft, "api", "client", nil, 30000, time.Minute, 0)

	if _, err := s.GetToken(context.Background()); err != nil {
		t.Fatalf("GetToken: %v", err)
	}

	s.Revoke(context.Background())
	if ft.revokeCalls != 1 {
		t.Fatalf("revokeCalls = %d, want 1", ft.revokeCalls)
	}

	// A second revoke with no token held is a no-op.
	s.Revoke(context.Background())
	if ft.revokeCalls != 1 {
		t.Fatalf("revokeCalls after second Revoke = %d, want still 1", ft.revokeCalls)
	}
}

func TestIsSessionError(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   bool
	}{
		{401, "", true},
		{403, "", true},
		{200, `{"error":"BadSessionToken"}`, true},
		{400, `{"message": "Unknown sessionToken"}`, true},
		{200, `{"ok":true}`, false},
		{200, "Session has expired", false},
		{500, "internal error", false},
	}
	for _, c := range cases {
		if got := isSessionError(c.status, []byte(c.body)); got != c.want {
			t.Errorf("isSessionError(%d, %q) = %v, want %v", c.status, c.body, got, c.want)
		}
	}
}
