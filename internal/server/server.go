// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server implements the proxy server (spec component C5): a gin
// router exposing the single POST / route, permissive development CORS, and
// a Manager that supports stop/restart with the listener grace period
// SPEC_FULL.md's target hot-edit feature relies on.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aleutianlabs/jrpcproxy/internal/engine"
)

// ShutdownGrace bounds how long Stop waits for the listener to fully release
// before returning, per spec.md §4.4's "bounded by a short grace period,
// e.g., 100 ms" restart discipline.
const ShutdownGrace = 100 * time.Millisecond

// Handler is the subset of *engine.Handler the server needs.
type Handler interface {
	Handle(ctx context.Context, headers map[string]string, body json.RawMessage) engine.Reply
}

// New builds the gin engine: a single POST / route plus the permissive CORS
// policy spec.md §4.4 requires for local development use.
func New(h Handler, metricsHandler http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"content-type", "authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.POST("/", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}

		reply := h.Handle(c.Request.Context(), collectHeaders(c.Request.Header), body)
		for name, value := range reply.Headers {
			c.Header(name, value)
		}
		c.Data(reply.Status, "application/json", reply.Body)
	})

	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	return router
}

func collectHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}

// Manager owns the lifecycle of one *http.Server instance and lets the
// controller restart it (e.g. on a target hot-edit) without leaking a
// listener: Stop always waits ShutdownGrace before returning.
type Manager struct {
	addr   string
	router *gin.Engine
	srv    *http.Server
}

// NewManager returns a Manager bound to addr, not yet started.
func NewManager(addr string, router *gin.Engine) *Manager {
	return &Manager{addr: addr, router: router}
}

// Start binds the listener and serves until Stop is called or the server
// fails. It runs in the caller's goroutine, so callers invoke it from a
// goroutine of their own (e.g. `go func() { errCh <- mgr.Start() }()`) and
// read the returned error there.
func (m *Manager) Start() error {
	m.srv = &http.Server{Addr: m.addr, Handler: m.router}
	slog.Info("proxy server listening", slog.String("addr", m.addr))
	if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop releases the listener, waiting up to ShutdownGrace for in-flight
// connections to finish before the caller may safely rebind the same port.
func (m *Manager) Stop(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownGrace)
	defer cancel()
	err := m.srv.Shutdown(shutdownCtx)
	time.Sleep(ShutdownGrace)
	return err
}
