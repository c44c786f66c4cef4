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

// Package ws is the one concrete, illustrative connector.Transport spec
// §6 calls an external collaborator: a text-websocket framing of the
// JSON array wire format over gorilla/websocket, adapted from the
// teacher's vendored device.manager readPump/writePump pair (binary WRP
// frames, ping/pong housekeeping) to devbridge's text JSON frames.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/websocket"

	"github.com/xmidt-org/devbridge/connector"
)

// Default pump tunables, mirroring the teacher's device.manager
// constants (writeWait/pongWait/pingPeriod) scaled for a JSON control
// protocol rather than a high-throughput WRP pipe.
const (
	DefaultWriteWait  = 10 * time.Second
	DefaultPongWait   = 60 * time.Second
	DefaultPingPeriod = (DefaultPongWait * 9) / 10
)

// Transport adapts one upgraded *websocket.Conn to connector.Transport.
// One Transport is constructed per accepted connection; it is not
// reused.
type Transport struct {
	conn   *websocket.Conn
	logger log.Logger

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

// New wraps conn using the Default* timings.
func New(conn *websocket.Conn, logger log.Logger) *Transport {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Transport{
		conn:       conn,
		logger:     logger,
		writeWait:  DefaultWriteWait,
		pongWait:   DefaultPongWait,
		pingPeriod: DefaultPingPeriod,
	}
}

// Connect implements connector.Transport: it runs the read and write
// pumps until either the connection fails or outgoing is closed by the
// connector, then returns. Matches the teacher's vendored
// readPump/writePump contract — two goroutines, one connection, cleanup
// funnelled through a single return.
func (t *Transport) Connect(ctx context.Context, outgoing <-chan []byte, incoming chan<- connector.Event) error {
	incoming <- connector.Event{Type: connector.Connected}

	t.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	})

	readErr := make(chan error, 1)
	go t.readPump(incoming, readErr)

	err := t.writePump(ctx, outgoing, readErr)
	incoming <- connector.Event{Type: connector.Closed}
	close(incoming)
	return err
}

// readPump blocks on ReadMessage, forwarding each text/binary frame as a
// connector.MessageReceived event, until the connection errors.
func (t *Transport) readPump(incoming chan<- connector.Event, readErr chan<- error) {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		incoming <- connector.Event{Type: connector.MessageReceived, Data: data}
	}
}

// writePump drains outgoing, writes each frame as a text message, and
// sends a ping on pingPeriod — the keep-alive the transport layer itself
// needs, distinct from spec §4.5's hardware keep-alive.
func (t *Transport) writePump(ctx context.Context, outgoing <-chan []byte, readErr <-chan error) error {
	ticker := time.NewTicker(t.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return err

		case data, ok := <-outgoing:
			if !ok {
				return nil
			}
			t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// Disconnect closes the underlying connection. Safe to call from a
// different goroutine than Connect; gorilla/websocket tolerates a
// concurrent Close alongside an in-flight Read/Write.
func (t *Transport) Disconnect() error {
	return t.conn.Close()
}

// Upgrader wraps websocket.Upgrader with the CheckOrigin devbridge uses:
// any origin, since this is a local control protocol for client
// applications, not a browser-facing API needing CSRF protection.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Upgrade upgrades r's connection to a websocket and wraps it as a
// Transport. Callers (the /ws handler in router.go) own the resulting
// Transport's lifetime.
func Upgrade(w http.ResponseWriter, r *http.Request, logger log.Logger) (*Transport, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		level.Error(logger).Log("msg", "websocket upgrade failed", "err", err)
		return nil, err
	}
	return New(conn, logger), nil
}
