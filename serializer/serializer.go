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

// Package serializer converts between the wire JSON array-of-tagged-objects
// framing (spec §4.2, §6) and canonical message.Message values, validating
// inbound payloads against a bundled JSON schema and picking the
// appropriate version's upgrader/downgrader based on the negotiated client
// spec version.
package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/message/upgrade"
)

// Decoded is one element of an inbound JSON array, after schema validation
// and version upgrade. Err is non-nil when the element named an unknown or
// deprecated message; the session is responsible for turning that into an
// Error reply addressed to the right Id rather than aborting the whole
// batch, since "JSON on the wire is always an array" batches are
// independent (spec §4.2).
type Decoded struct {
	Message message.Message
	Name    string
	ID      uint32
	Err     error
}

// Serializer is stateless once constructed: the schema validator is loaded
// once at startup and never mutated (spec §9 "Global state").
type Serializer struct {
	schema *gojsonschema.Schema
}

// New compiles the bundled message schema. The schema only constrains
// wire-level shape (array of single-key objects whose value is an object;
// Id is not checked by the schema); field
// range/enum validation is message.Validate's job, which needs device
// context the schema doesn't have.
func New() (*Serializer, error) {
	loader := gojsonschema.NewStringLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("compiling message schema: %w", err)
	}
	return &Serializer{schema: schema}, nil
}

// Decode validates raw against the bundled schema, then decodes each array
// element into its version-specific payload and upgrades it to V4.
//
// A schema violation (malformed JSON, not an array, array elements that
// aren't single-key objects) is reported via the returned error: the caller
// replies with a single Error{ERROR_MSG} carrying Id = SystemID, per
// spec §4.2.
func (s *Serializer) Decode(raw []byte, version message.Version, ctx message.DeviceContext) ([]Decoded, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validating message schema: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("message schema violation: %s", result.Errors())
	}

	var envelopes []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelopes); err != nil {
		return nil, fmt.Errorf("decoding message array: %w", err)
	}

	u, ok := upgrade.For(version)
	if !ok {
		return nil, fmt.Errorf("no upgrader registered for version %d", version)
	}

	out := make([]Decoded, 0, len(envelopes))
	for _, envelope := range envelopes {
		name, body, err := singleKey(envelope)
		if err != nil {
			out = append(out, Decoded{Err: err})
			continue
		}

		payload, ok := u.NewPayload(name)
		if !ok {
			out = append(out, Decoded{Name: name, Err: fmt.Errorf("unknown message %q", name)})
			continue
		}

		if err := json.Unmarshal(body, payload); err != nil {
			out = append(out, Decoded{Name: name, Err: fmt.Errorf("decoding %s: %w", name, err)})
			continue
		}

		id := idOf(body)

		m, err := u.Up(name, payload, ctx)
		if err != nil {
			out = append(out, Decoded{Name: name, ID: id, Err: err})
			continue
		}

		out = append(out, Decoded{Message: m, Name: name, ID: m.ID()})
	}

	return out, nil
}

// Encode downgrades each canonical message to the negotiated version's
// vocabulary and frames the survivors as a JSON array of single-key
// objects. Messages with no representation in the target version are
// silently dropped (spec §4.1); if every message is dropped, Encode
// returns an empty JSON array "[]", never nil.
func (s *Serializer) Encode(msgs []message.Message, version message.Version, ctx message.DeviceContext) ([]byte, error) {
	u, ok := upgrade.For(version)
	if !ok {
		return nil, fmt.Errorf("no upgrader registered for version %d", version)
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	wrote := false
	for _, m := range msgs {
		name, payload, ok := u.Down(m, ctx)
		if !ok {
			continue
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", name, err)
		}

		if wrote {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		keyJSON, _ := json.Marshal(name)
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(body)
		buf.WriteByte('}')
		wrote = true
	}
	buf.WriteByte(']')

	return buf.Bytes(), nil
}

func singleKey(envelope map[string]json.RawMessage) (string, json.RawMessage, error) {
	if len(envelope) != 1 {
		return "", nil, fmt.Errorf("message envelope must have exactly one key, got %d", len(envelope))
	}
	for k, v := range envelope {
		return k, v, nil
	}
	panic("unreachable")
}

func idOf(raw json.RawMessage) uint32 {
	var probe struct {
		Id uint32 `json:"Id"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.Id
}

// schemaJSON is the bundled JSON schema constraining the wire-level shape
// of a devbridge message batch: an array of objects, each with exactly one
// property whose value is an object. It does not reject an empty array and
// does not require an Id.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "minProperties": 1,
    "maxProperties": 1,
    "additionalProperties": {
      "type": "object"
    }
  }
}`
