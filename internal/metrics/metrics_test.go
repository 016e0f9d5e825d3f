// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestExchangesTotal_IncrementsByDirection(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ExchangesTotal.WithLabelValues("request").Inc()
	m.ExchangesTotal.WithLabelValues("request").Inc()
	m.ExchangesTotal.WithLabelValues("response").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ExchangesTotal.WithLabelValues("request")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExchangesTotal.WithLabelValues("response")))
}

func TestDecisionsTotal_IncrementsByKind(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.DecisionsTotal.WithLabelValues("block").Inc()
	m.DecisionsTotal.WithLabelValues("allow").Inc()
	m.DecisionsTotal.WithLabelValues("allow").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("block")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("allow")))
}

func TestPendingDepth_SetReflectsQueueSize(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.PendingDepth.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PendingDepth))

	m.PendingDepth.Dec()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PendingDepth))
}

func TestInterceptTimeoutsTotal_Increments(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.InterceptTimeoutsTotal.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.InterceptTimeoutsTotal))
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.ExchangesTotal.WithLabelValues("request").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	Handler(reg).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jrpcproxy_proxy_exchanges_total")
}
