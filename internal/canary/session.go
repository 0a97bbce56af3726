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
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/aaronlmathis/uns-metadata-sync/internal/logging"
)

// isSessionError reports whether an HTTP response should be treated as an
// invalid/expired session: status 401/403, or (since some Canary
// deployments answer 200, or another 4xx, with an error envelope) a body
// whose message contains the literal "BadSessionToken" or "sessionToken".
// Both checks run regardless of status.
func isSessionError(status int, body []byte) bool {
	if status == 401 || status == 403 {
		return true
	}
	message := string(body)
	return strings.Contains(message, "BadSessionToken") || strings.Contains(message, "sessionToken")
}

// SessionManager owns the Canary session token's acquire/keepalive/revoke
// lifecycle behind a single lock, per the spec's "get_token may issue
// network I/O while holding it" shared-mutation note.
type SessionManager struct {
	transport  Transport
	apiToken   string
	clientID   string
	historians []string
	timeoutMS  int

	keepaliveIdle   time.Duration
	keepaliveJitter time.Duration

	mu           sync.Mutex
	token        string
	lastActivity time.Time
}

// NewSessionManager builds a manager with no token acquired yet.
func NewSessionManager(transport Transport, apiToken, clientID string, historians []string, timeoutMS int, keepaliveIdle, keepaliveJitter time.Duration) *SessionManager {
	return &SessionManager{
		transport:       transport,
		apiToken:        apiToken,
		clientID:        clientID,
		historians:      historians,
		timeoutMS:       timeoutMS,
		keepaliveIdle:   keepaliveIdle,
		keepaliveJitter: keepaliveJitter,
	}
}

// GetToken returns the current session token, acquiring one if absent and
// issuing a keepalive first if the session has been idle past the
// jittered threshold.
func (s *SessionManager) GetToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		threshold := s.keepaliveIdle
		if s.keepaliveJitter > 0 {
			threshold += time.Duration(rand.Int63n(int64(s.keepaliveJitter)))
		}
		if time.Since(s.lastActivity) >= threshold {
			status, body, err := s.transport.KeepAlive(ctx, s.token)
			if err != nil {
				return "", fmt.Errorf("canary: keepalive failed: %w", err)
			}
			if isSessionError(status, body) {
				s.token = ""
			} else {
				s.lastActivity = time.Now()
			}
		}
	}

	if s.token == "" {
		token, status, body, err := s.transport.GetSessionToken(ctx, s.apiToken, s.clientID, s.historians, s.timeoutMS)
		if err != nil {
			return "", fmt.Errorf("canary: session acquisition failed: %w", err)
		}
		if token == "" || isSessionError(status, body) {
			return "", fmt.Errorf("canary: session acquisition rejected (status %d)", status)
		}
		s.token = token
		s.lastActivity = time.Now()
	}

	return s.token, nil
}

// Invalidate forces the next GetToken call to reacquire a fresh token.
func (s *SessionManager) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// MarkActivity resets the idle-keepalive clock; the dispatcher calls this
// after every successful StoreData.
func (s *SessionManager) MarkActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Revoke calls /revokeSessionToken and swallows any failure, per the
// spec's stop() behavior.
func (s *SessionManager) Revoke(ctx context.Context) {
	s.mu.Lock()
	token := s.token
	s.token = ""
	s.mu.Unlock()

	if token == "" {
		return
	}
	if _, _, err := s.transport.RevokeSessionToken(ctx, token); err != nil {
		logging.Warn("canary: session revoke failed: %v", err)
	}
}
