/**
 * Copyright 2017 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package ws

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/xmidt-org/devbridge/connector"
	"github.com/xmidt-org/devbridge/session"
)

// SessionFactory builds and starts one Session around conn; it may return
// before the session ends. The router calls it from the HTTP handler of
// each accepted connection; it never touches conn again afterward.
type SessionFactory func(conn *connector.Connector)

// Options configures NewRouter.
type Options struct {
	// QueueSize bounds each connection's connector outbound/inbound
	// queues (spec §5 "bounded for backpressure on command floods").
	QueueSize int

	NewSession SessionFactory
	Logger     log.Logger

	// MetricsHandler, if set, serves /metrics (typically promhttp over the
	// registry internal/metrics.New registered Measures against); if nil,
	// promhttp.Handler() is used.
	MetricsHandler http.Handler
}

// NewRouter builds the admin/websocket router: the teacher's
// mux.NewRouter() + baseRouter.PathPrefix(apiBase).Subrouter() +
// alice.New(...).Then(r) shape from tr1d1um.go, generalized from an
// authenticated REST API to devbridge's unauthenticated (per spec §4.3,
// handshake carries no credential) websocket control channel, with the
// same otelmux span-per-request instrumentation the teacher wires onto
// its own mux.Router.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 32
	}

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("devbridge"))

	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		handleUpgrade(w, req, logger, queueSize, opts.NewSession)
	})

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler)
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	chain := alice.New(recoverMiddleware(logger), requestLogMiddleware(logger))
	return chain.Then(r)
}

func handleUpgrade(w http.ResponseWriter, r *http.Request, logger log.Logger, queueSize int, newSession SessionFactory) {
	transport, err := Upgrade(w, r, logger)
	if err != nil {
		return
	}
	conn := connector.New(transport, queueSize, logger)
	if newSession == nil {
		_ = conn.Close()
		return
	}
	newSession(conn)
}

// recoverMiddleware turns a panic inside the router chain into a 500
// instead of crashing the listener goroutine — the HTTP-layer analogue
// of spec §7's "panics in handler code are caught at the per-device task
// boundary."
func recoverMiddleware(logger log.Logger) alice.Constructor {
	errorLog := level.Error(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					errorLog.Log("msg", "panic in http handler", "recover", rec, "path", r.URL.Path)
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogMiddleware(logger log.Logger) alice.Constructor {
	debugLog := level.Debug(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			debugLog.Log("msg", "http request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
