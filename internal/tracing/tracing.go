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

// Package tracing configures the process-wide otel TracerProvider the
// same way the teacher's server.Initialize hands a candlelight config to
// the rest of the server: one Config section read out of viper, one
// provider built at startup and installed globally, one deferred
// shutdown on exit. Spans here are an ambient concern (spec §2's control
// flow diagram, not a feature spec.md names), so they stay out of the
// core packages entirely and are only attached at the transport edge
// (transport/ws's otelmux middleware) and the one HTTP-based hardware
// communication manager (device/comm/lovenseconnect's otelhttp client).
package tracing

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"github.com/xmidt-org/candlelight"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracingConfigKey is the viper key tr1d1um.go's server.Initialize would
// have bound candlelight's own Config under.
const tracingConfigKey = "tracing"

// Provider wraps the otel TracerProvider devbridge installs globally plus
// the shutdown func candlelight hands back so callers don't need to
// depend on the SDK type underneath it.
type Provider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

// Configure reads a candlelight.Config out of v's "tracing" section and
// builds a Provider for applicationName. A zero-value/absent config
// section resolves to candlelight's noop provider, matching tr1d1um.go's
// "tracing disabled unless configured" default.
func Configure(v *viper.Viper, applicationName string) (*Provider, error) {
	var cfg candlelight.Config
	if v != nil {
		if err := v.UnmarshalKey(tracingConfigKey, &cfg); err != nil {
			return nil, fmt.Errorf("tracing: unmarshal config: %w", err)
		}
	}
	cfg.ApplicationName = applicationName

	tp, err := candlelight.ConfigureTracing(cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: configure: %w", err)
	}

	otel.SetTracerProvider(tp)

	return &Provider{TracerProvider: tp, shutdown: shutdownFunc(tp)}, nil
}

// shutdownFunc adapts whichever concrete SDK provider candlelight
// returns to a plain context.Context shutdown func, tolerating providers
// (like the noop one) that don't expose Shutdown.
func shutdownFunc(tp trace.TracerProvider) func(context.Context) error {
	type shutdowner interface {
		Shutdown(context.Context) error
	}
	if s, ok := tp.(shutdowner); ok {
		return s.Shutdown
	}
	return func(context.Context) error { return nil }
}

// Shutdown flushes and stops the provider. Safe to call on a nil
// Provider so callers can defer it unconditionally.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Tracer returns a named tracer from the configured provider, the same
// way transport/ws and device/comm/lovenseconnect obtain one to start
// spans around a websocket session or an outbound HTTP poll.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil {
		return otel.Tracer(name)
	}
	return p.TracerProvider.Tracer(name)
}
