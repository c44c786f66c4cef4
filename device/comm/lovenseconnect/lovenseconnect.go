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

// Package lovenseconnect implements one concrete
// device.HardwareCommunicationManager: the Lovense Connect desktop/phone
// app exposes a local REST API that lists paired toys and accepts ASCII
// commands for them, in place of a direct BLE connection. Grounded on
// the original implementation's
// server/device/hardware/communication/lovense_connect_service/mod.rs,
// this is the one HTTP-based manager spec §6's "Hardware communication
// manager contract" gets a real, fully-wired implementation for; every
// other transport (BLE, HID, serial) stays an external collaborator per
// spec §1.
package lovenseconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"

	"github.com/xmidt-org/devbridge/device/config"
	"github.com/xmidt-org/devbridge/message"
)

// DefaultPollInterval matches the ~1s polling the original module uses
// against the local Lovense Connect server.
const DefaultPollInterval = time.Second

// toy is the subset of the Lovense Connect /GetToys response this
// manager cares about.
type toy struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	NickName string `json:"nickName"`
	Status  int    `json:"status"` // 1 == connected
	Battery int    `json:"battery"`
}

// Config configures a Manager.
type Config struct {
	// BaseURL is the Lovense Connect server's local origin, e.g.
	// "http://127.0.0.1:30010".
	BaseURL string

	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       log.Logger
}

func (c *Config) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
}

func getToysURL(c Config) string { return c.BaseURL + "/GetToys" }

func commandURL(c Config, id, command string) string {
	return fmt.Sprintf("%s/command?id=%s&command=%s", c.BaseURL, id, command)
}

// endpoint adapts one toy's HTTP command/poll surface to device.Endpoint.
type endpoint struct {
	cfg Config
	id  string
}

// WriteValue sends data (an ASCII Lovense command line, e.g.
// "Vibrate:10;", produced by protocol/handlers/lovense.go) as the
// "command" query parameter of a GET against the toy's id. The endpoint
// and writeWithResponse arguments are unused: Lovense Connect has one
// logical channel per toy and always answers synchronously.
func (e endpoint) WriteValue(ctx context.Context, _ []uuid.UUID, _ message.Endpoint, data []byte, _ bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, commandURL(e.cfg, e.id, string(data)), nil)
	if err != nil {
		return err
	}
	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lovenseconnect: command rejected: %s", resp.Status)
	}
	return nil
}

// ReadValue polls GetToys and extracts this toy's battery level, the
// only input reading Lovense Connect exposes without a BLE
// characteristic subscription (spec §4.5's battery ReadInput).
func (e endpoint) ReadValue(ctx context.Context, _ message.Endpoint, _ int, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getToysURL(e.cfg), nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	toys, err := decodeToys(resp.Body)
	if err != nil {
		return nil, err
	}
	for _, t := range toys {
		if t.ID == e.id {
			return []byte{byte(t.Battery)}, nil
		}
	}
	return nil, fmt.Errorf("lovenseconnect: toy %s no longer present", e.id)
}

// Subscribe/Unsubscribe: Lovense Connect has no push notification
// surface, only polling, so no feature on this manager supports
// SubscribeInput and protocol.Handler.SubscribeInput is never called for
// it (spec §4.5's optional capability).
func (e endpoint) Subscribe(context.Context, message.Endpoint) (<-chan []byte, error) {
	return nil, fmt.Errorf("lovenseconnect: subscriptions unsupported")
}

func (e endpoint) Unsubscribe(context.Context, message.Endpoint) error { return nil }

// Disconnect is a no-op: there's no persistent connection to this toy
// beyond the shared HTTP client, which outlives any one Device.
func (e endpoint) Disconnect() error { return nil }

func decodeToys(r io.Reader) ([]toy, error) {
	var byID map[string]toy
	dec := json.NewDecoder(r)
	if err := dec.Decode(&byID); err != nil {
		return nil, err
	}
	out := make([]toy, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	return out, nil
}
