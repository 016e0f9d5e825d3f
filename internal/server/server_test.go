// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutianlabs/jrpcproxy/internal/engine"
)

type fakeHandler struct {
	reply   engine.Reply
	headers map[string]string
}

func (f *fakeHandler) Handle(ctx context.Context, headers map[string]string, body json.RawMessage) engine.Reply {
	f.headers = headers
	return f.reply
}

func TestNew_PostRootRoutesToHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &fakeHandler{reply: engine.Reply{Status: http.StatusOK, Body: json.RawMessage(`{"jsonrpc":"2.0","id":1,"result":"ok"}`)}}
	router := New(h, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"jsonrpc":"2.0","method":"ping","id":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"ok"}`, rec.Body.String())
}

func TestNew_CORSPreflightAllowsAnyOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &fakeHandler{}
	router := New(h, nil)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNew_MetricsRouteOptional(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &fakeHandler{}
	router := New(h, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManager_StopReleasesListenerWithinGrace(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &fakeHandler{reply: engine.Reply{Status: http.StatusOK, Body: json.RawMessage(`{}`)}}
	router := New(h, nil)

	mgr := NewManager("127.0.0.1:0", router)
	errCh := make(chan error, 1)
	go func() { errCh <- mgr.Start() }()

	// Give the listener a moment to bind before stopping it.
	require.Eventually(t, func() bool { return mgr.srv != nil }, time.Second, time.Millisecond)

	err := mgr.Stop(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, <-errCh)
}
