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

package lovenseconnect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xmidt-org/devbridge/device"
	"github.com/xmidt-org/devbridge/device/config"
)

// Manager polls a Lovense Connect server for its paired-toy list and
// translates additions/removals into device.CommEvents, implementing
// device.HardwareCommunicationManager.
type Manager struct {
	cfg Config

	logger   log.Logger
	errorLog log.Logger
	debugLog log.Logger

	events chan device.CommEvent

	mu      sync.Mutex
	known   map[string]string // toy id -> name, as last reported to device.Manager
	running bool
	cancel  context.CancelFunc
}

// New builds a Manager. Its HTTPClient is wrapped with otelhttp so every
// poll and command round-trip produces a span, matching the teacher's
// instrumentation of its own outbound XMiDT client.
func New(cfg Config) *Manager {
	cfg.withDefaults()
	cfg.HTTPClient = &http.Client{
		Timeout:   cfg.HTTPClient.Timeout,
		Transport: otelhttp.NewTransport(cfg.HTTPClient.Transport),
	}

	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger,
		errorLog: level.Error(cfg.Logger),
		debugLog: level.Debug(cfg.Logger),
		events:   make(chan device.CommEvent, 8),
		known:    make(map[string]string),
	}
}

// Name implements device.HardwareCommunicationManager.
func (m *Manager) Name() string { return "lovenseconnect" }

// Events implements device.HardwareCommunicationManager.
func (m *Manager) Events() <-chan device.CommEvent { return m.events }

// IsScanning implements device.HardwareCommunicationManager.
func (m *Manager) IsScanning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// StartScanning begins polling GetToys on cfg.PollInterval until
// StopScanning is called or ctx is cancelled. Each poll diffs the
// returned toy set against the last known one, emitting DeviceFound for
// additions and DeviceManuallyRemoved for drops.
func (m *Manager) StartScanning(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	pollCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.mu.Unlock()

	m.emit(device.CommEvent{Type: device.ScanningStarted})
	go m.poll(pollCtx)
	return nil
}

// StopScanning implements device.HardwareCommunicationManager.
func (m *Manager) StopScanning(context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (m *Manager) poll(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	defer m.emit(device.CommEvent{Type: device.ScanningFinishedEvt})

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getToysURL(m.cfg), nil)
	if err != nil {
		m.errorLog.Log("msg", "build GetToys request failed", "err", err)
		return
	}
	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		m.debugLog.Log("msg", "GetToys poll failed", "err", err)
		return
	}
	defer resp.Body.Close()

	toys, err := decodeToys(resp.Body)
	if err != nil {
		m.errorLog.Log("msg", "decode GetToys response failed", "err", err)
		return
	}

	m.mu.Lock()
	seen := make(map[string]string, len(toys))
	var added []toy
	for _, t := range toys {
		seen[t.ID] = t.Name
		if _, ok := m.known[t.ID]; !ok {
			added = append(added, t)
		}
	}
	var removedNames []string
	for id, name := range m.known {
		if _, ok := seen[id]; !ok {
			removedNames = append(removedNames, name)
		}
	}
	m.known = seen
	m.mu.Unlock()

	for _, t := range added {
		m.emit(device.CommEvent{
			Type: device.DeviceFound,
			Descriptor: config.Descriptor{
				Name:            t.Name,
				VendorProductID: t.ID,
			},
			Endpoint: endpoint{cfg: m.cfg, id: t.ID},
		})
	}
	// DeviceManuallyRemoved keys off Descriptor.Name, matching what
	// device.Manager stored at add time (removedByID is indexed by
	// Descriptor.Name, not the toy id).
	for _, name := range removedNames {
		m.emit(device.CommEvent{Type: device.DeviceManuallyRemoved, RemovedID: name})
	}
}

func (m *Manager) emit(ev device.CommEvent) {
	select {
	case m.events <- ev:
	default:
		m.errorLog.Log("msg", "dropping lovenseconnect event, channel full", "type", ev.Type)
	}
}
