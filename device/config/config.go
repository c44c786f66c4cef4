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

// Package config implements the declarative device configuration table
// from spec §6: a read-only, load-once-at-startup table keyed by
// discovery descriptor (BLE service/name, serial vendor/product id, ...)
// resolving to a protocol name, a user-facing display name, a feature
// list with ranges, and a raw-endpoint allowlist. The core treats it as
// read-only global state (spec §9 "Global state"), the same contract the
// teacher applies to its schema validator.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xmidt-org/devbridge/message"
)

// FeatureSpec declares one addressable capability a matching device is
// assumed to expose.
type FeatureSpec struct {
	Actuator    message.ActuatorType
	Input       message.InputType
	Min, Max    uint32
	StepCount   uint32
	Description string
	Endpoint    message.Endpoint
}

// Descriptor is the subset of a DeviceFound probe result the table
// matches against. Concrete transports (BLE, serial, HID) populate it
// differently; the table only cares about these three fields.
type Descriptor struct {
	Name           string
	ServiceUUID    string
	VendorProductID string
}

// Entry is one row of the device configuration table: everything needed
// to turn a DeviceFound descriptor into a registered Device.
type Entry struct {
	Protocol       string
	DisplayName    string
	Features       []FeatureSpec
	RawAllowed     bool
	NamePrefixes   []string
	ServiceUUIDs   []string
	VendorProducts []string
}

// Table is the loaded, read-only configuration. Safe for concurrent use
// by every device-manager goroutine once built.
type Table struct {
	entries []Entry

	featureIDs map[string]uuid.UUID
	idMu       sync.Mutex
}

// New builds a Table from entries. Feature UUIDs are assigned
// deterministically per (protocol, feature-index) the first time they're
// requested via FeatureID, so the same device reconnecting mid-session
// keeps its feature identities (spec §3 "DeviceFeature ... assigned
// stable UUIDs ... so per-feature state survives reconnect").
func New(entries []Entry) *Table {
	return &Table{
		entries:    entries,
		featureIDs: make(map[string]uuid.UUID),
	}
}

// Resolve matches a descriptor against the table in declaration order,
// returning the first Entry whose match predicates are satisfied.
func (t *Table) Resolve(d Descriptor) (Entry, bool) {
	for _, e := range t.entries {
		if matches(e, d) {
			return e, true
		}
	}
	return Entry{}, false
}

func matches(e Entry, d Descriptor) bool {
	if len(e.NamePrefixes) > 0 {
		matched := false
		for _, prefix := range e.NamePrefixes {
			if strings.HasPrefix(d.Name, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(e.ServiceUUIDs) > 0 && !contains(e.ServiceUUIDs, d.ServiceUUID) {
		return false
	}
	if len(e.VendorProducts) > 0 && !contains(e.VendorProducts, d.VendorProductID) {
		return false
	}
	return len(e.NamePrefixes) > 0 || len(e.ServiceUUIDs) > 0 || len(e.VendorProducts) > 0
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// FeatureID returns the stable UUID for (protocol, featureIndex),
// generating and caching a version-5 UUID derived from both on first use.
// Deriving rather than randomly generating means the same protocol +
// index always resolves to the same identity even across process
// restarts, which is what "survives reconnect" requires once combined
// with a persisted device identifier upstream.
func (t *Table) FeatureID(protocol string, featureIndex uint32) uuid.UUID {
	key := fmt.Sprintf("%s/%d", protocol, featureIndex)

	t.idMu.Lock()
	defer t.idMu.Unlock()
	if id, ok := t.featureIDs[key]; ok {
		return id
	}
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(key))
	t.featureIDs[key] = id
	return id
}
