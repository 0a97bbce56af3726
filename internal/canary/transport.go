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
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Transport is the narrow capability Canary's four HTTP endpoints need;
// the built-in implementation is net/http, but tests substitute a fake.
type Transport interface {
	GetSessionToken(ctx context.Context, apiToken, clientID string, historians []string, timeoutMS int) (sessionToken string, status int, body []byte, err error)
	KeepAlive(ctx context.Context, sessionToken string) (status int, body []byte, err error)
	RevokeSessionToken(ctx context.Context, sessionToken string) (status int, body []byte, err error)
	StoreData(ctx context.Context, sessionToken string, properties map[string][]sampleRow) (status int, body []byte, err error)
}

// HTTPTransport is the built-in Transport: JSON POSTs over net/http.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport builds a Transport against baseURL with the given
// per-request timeout and TLS verification setting.
func NewHTTPTransport(baseURL string, timeout time.Duration, tlsInsecure bool) *HTTPTransport {
	transport := &http.Transport{}
	if tlsInsecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (t *HTTPTransport) post(ctx context.Context, path string, body any) (int, []byte, error) {
	data, err := jsonAPI.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

type getSessionTokenRequest struct {
	APIToken   string   `json:"apiToken"`
	ClientID   string   `json:"clientId"`
	Historians []string `json:"historians"`
	Settings   struct {
		ClientTimeout int `json:"clientTimeout"`
	} `json:"settings"`
}

type getSessionTokenResponse struct {
	SessionToken string `json:"sessionToken"`
}

func (t *HTTPTransport) GetSessionToken(ctx context.Context, apiToken, clientID string, historians []string, timeoutMS int) (string, int, []byte, error) {
	req := getSessionTokenRequest{APIToken: apiToken, ClientID: clientID, Historians: historians}
	req.Settings.ClientTimeout = timeoutMS

	status, body, err := t.post(ctx, "/getSessionToken", req)
	if err != nil {
		return "", status, body, err
	}
	var resp getSessionTokenResponse
	_ = jsonAPI.Unmarshal(body, &resp)
	return resp.SessionToken, status, body, nil
}

func (t *HTTPTransport) KeepAlive(ctx context.Context, sessionToken string) (int, []byte, error) {
	return t.post(ctx, "/keepAlive", map[string]string{"sessionToken": sessionToken})
}

func (t *HTTPTransport) RevokeSessionToken(ctx context.Context, sessionToken string) (int, []byte, error) {
	return t.post(ctx, "/revokeSessionToken", map[string]string{"sessionToken": sessionToken})
}

func (t *HTTPTransport) StoreData(ctx context.Context, sessionToken string, properties map[string][]sampleRow) (int, []byte, error) {
	return t.post(ctx, "/storeData", map[string]any{"sessionToken": sessionToken, "properties": properties})
}
