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

// Package connector implements the transport-agnostic duplex adapter from
// spec §4.2/§8 (C8): it pairs an outbound message queue with an inbound
// event stream, decoupling the session state machine from whichever
// concrete Transport (websocket, stdio, ...) is carrying the bytes.
//
// The Connector itself runs no pumps: Run hands both queues to the
// Transport's Connect (transport/ws runs the read and write pumps and the
// ping ticker there), and the Connector closes Done through a single
// sync.Once so cleanup only runs once.
package connector

import (
	"context"
	"io"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// EventType discriminates the four things a Transport can tell a Connector.
type EventType int

// Recognized event types.
const (
	Connected EventType = iota
	MessageReceived
	TransportError
	Closed
)

// Event is one inbound notification from the transport.
type Event struct {
	Type EventType
	Data []byte
	Err  error
}

// Transport is the external collaborator contract from spec §6: devbridge
// consumes it, never defines it. Connect must not return until Disconnect
// is called or an unrecoverable error occurs; it delivers events on
// incoming and reads outbound frames from outgoing until outgoing closes.
type Transport interface {
	Connect(ctx context.Context, outgoing <-chan []byte, incoming chan<- Event) error
	Disconnect() error
}

// ErrQueueFull is returned by Send when the outbound queue's bound has been
// reached — the command-flood backpressure spec §5 requires.
type ErrQueueFull struct{}

func (ErrQueueFull) Error() string { return "connector: outbound queue full" }

// Connector owns one Transport for the lifetime of one client session.
type Connector struct {
	logger    log.Logger
	transport Transport
	outbound  chan []byte
	events    chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a Connector around transport. queueSize bounds the
// outbound queue (spec §5: "bounded for backpressure on command floods").
func New(transport Transport, queueSize int, logger log.Logger) *Connector {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Connector{
		logger:    logger,
		transport: transport,
		outbound:  make(chan []byte, queueSize),
		events:    make(chan Event, queueSize),
		done:      make(chan struct{}),
	}
}

// Run blocks until the transport returns, ctx is cancelled, or Close is
// called. It is meant to be run in its own goroutine by the session.
func (c *Connector) Run(ctx context.Context) error {
	err := c.transport.Connect(ctx, c.outbound, c.events)
	c.closeOnce.Do(func() {
		close(c.done)
		level.Debug(c.logger).Log("msg", "connector transport returned", "err", err)
	})
	return err
}

// Send enqueues a frame for delivery. It never blocks: if the outbound
// queue is full, it returns ErrQueueFull immediately rather than stalling
// the caller (typically the session's single-goroutine dispatch loop).
func (c *Connector) Send(data []byte) error {
	select {
	case c.outbound <- data:
		return nil
	case <-c.done:
		return io.ErrClosedPipe
	default:
		return ErrQueueFull{}
	}
}

// Events returns the channel of inbound transport notifications. Exactly
// one goroutine (the session) should range over it.
func (c *Connector) Events() <-chan Event {
	return c.events
}

// Close signals the transport to disconnect. Safe to call more than once
// and from a different goroutine than Run.
func (c *Connector) Close() error {
	return c.transport.Disconnect()
}

// Done is closed once the transport's Connect call has returned, whether
// from Close, a transport error, or ctx cancellation.
func (c *Connector) Done() <-chan struct{} {
	return c.done
}
