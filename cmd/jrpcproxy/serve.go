// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aleutianlabs/jrpcproxy/internal/controller"
	"github.com/aleutianlabs/jrpcproxy/internal/engine"
	"github.com/aleutianlabs/jrpcproxy/internal/forwarder"
	"github.com/aleutianlabs/jrpcproxy/internal/intercept"
	"github.com/aleutianlabs/jrpcproxy/internal/jlog"
	"github.com/aleutianlabs/jrpcproxy/internal/metrics"
	"github.com/aleutianlabs/jrpcproxy/internal/rpc"
	"github.com/aleutianlabs/jrpcproxy/internal/server"
	"github.com/aleutianlabs/jrpcproxy/internal/store"
	"github.com/aleutianlabs/jrpcproxy/internal/tui"
)

// forwardTimeout bounds how long the forwarder waits for the upstream
// target to answer a single request.
const forwardTimeout = 30 * time.Second

// sendTimeout bounds the TUI's own client used for injected requests
// (SPEC_FULL.md §4's "inject new request" supplement).
const sendTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy and its interactive terminal UI",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	logger := jlog.New(jlog.Config{Level: jlog.LevelInfo, JSON: cfg.LogJSON, Service: "jrpcproxy"})

	target := newTargetHolder(cfg.TargetURL)

	var handlerMetrics *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		handlerMetrics = metrics.New(reg)
		metricsHandler := metrics.Handler(reg)
		go func() {
			logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, metricsHandler); err != nil {
				logger.Error("metrics server exited", "err", err)
			}
		}()
	}

	st := store.New()
	st.OnDropped(func(msg rpc.Message) {
		logger.Warn("dropped message, store ingress full", "method", methodOrEmpty(msg))
	})

	modeGate := rpc.NewModeGate()
	ctrl := controller.New(st, modeGate)
	broker := intercept.New(ctrl.PendingSink())
	fwd := forwarder.New(forwardTimeout)

	handler := &engine.Handler{
		Store:    st,
		Broker:   broker,
		Upstream: fwd,
		Mode:     modeGate,
		Target:   target.Get,
		Metrics:  handlerMetrics,
	}

	router := server.New(handler, nil)
	mgr := server.NewManager(listenAddr(), router)

	go func() {
		if err := mgr.Start(); err != nil {
			logger.Error("proxy server exited", "err", err)
		}
	}()

	deps := tui.Deps{
		SendRequest:  func(body json.RawMessage, direct bool) error { return sendInjectedRequest(body, direct, target) },
		TargetURL:    target.Get,
		SetTargetURL: func(url string) error { return restartWithTarget(mgr, target, url) },
	}

	if !interactiveTerminal() {
		logger.Info("no interactive terminal detected, running headless", "listen", listenAddr(), "target", target.Get())
		runHeadless(logger)
		return
	}

	model := tui.New(ctrl, deps)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		logger.Error("tui exited with error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), server.ShutdownGrace)
	defer cancel()
	_ = mgr.Stop(ctx)
}

func interactiveTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// runHeadless blocks until SIGINT/SIGTERM, for use when jrpcproxy is driven
// without an attached terminal (e.g. under a process supervisor).
func runHeadless(logger *jlog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")
}

func listenAddr() string {
	return ":" + strconv.Itoa(cfg.ListenPort)
}

// restartWithTarget implements the target hot-edit supplement exactly as
// spec.md §4.4 describes reconfiguration: cancel the running server task,
// let it release the listener (bounded by server.ShutdownGrace), then spawn
// a fresh one bound to the same address once the new target is in place.
func restartWithTarget(mgr *server.Manager, target *targetHolder, url string) error {
	if url == "" {
		return fmt.Errorf("target url must not be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*server.ShutdownGrace)
	defer cancel()
	if err := mgr.Stop(ctx); err != nil {
		return fmt.Errorf("stopping proxy server: %w", err)
	}

	target.Set(url)

	go func() {
		_ = mgr.Start()
	}()
	return nil
}

// sendInjectedRequest implements "inject new request" (SPEC_FULL.md §4): in
// Normal mode it posts through the proxy's own listener so the request is
// captured like any other traffic; when paused it posts directly to the
// target to avoid the request intercepting itself forever. Either way a
// target must be configured.
func sendInjectedRequest(body json.RawMessage, direct bool, target *targetHolder) error {
	if target.Get() == "" {
		return fmt.Errorf("no target configured")
	}
	url := "http://127.0.0.1" + listenAddr() + "/"
	if direct {
		url = target.Get()
	}

	client := &http.Client{Timeout: sendTimeout}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func methodOrEmpty(msg rpc.Message) string {
	if msg.Method != nil {
		return *msg.Method
	}
	return ""
}
