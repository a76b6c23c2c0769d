// Copyright © 2024 Friendship Engine Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wireproto encodes/decodes the FRIENDSHIP_EVENTS_UPDATES bus
// payload (§6: "payload is protocol-buffer Event{from, to, friendship_event:
// FriendshipEventResponse}"). The wire format is hand-encoded against the
// protobuf wire format using google.golang.org/protobuf/encoding/protowire
// (the low-level codec underneath every *.pb.go file in the teacher's own
// openimsdk/protocol dependency) rather than checked-in generated code,
// since this repository has no protoc toolchain step.
package wireproto

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the Event message, matching §6's field order.
const (
	fieldFrom           = 1
	fieldTo             = 2
	fieldEvent          = 3
	fieldMessage        = 4
	fieldCreatedAtUnix  = 5
)

// Event is the bus payload: a committed friendship change plus enough
// context for a subscriber to render a FriendshipEventResponse.
type Event struct {
	From      string
	To        string
	Event     string
	Message   string
	CreatedAt time.Time
}

// Marshal encodes e using the protobuf wire format (length-prefixed
// varint/string fields), matching the teacher's use of protobuf for every
// cross-instance message.
func Marshal(e Event) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldFrom, protowire.BytesType)
	b = protowire.AppendString(b, e.From)
	b = protowire.AppendTag(b, fieldTo, protowire.BytesType)
	b = protowire.AppendString(b, e.To)
	b = protowire.AppendTag(b, fieldEvent, protowire.BytesType)
	b = protowire.AppendString(b, e.Event)
	if e.Message != "" {
		b = protowire.AppendTag(b, fieldMessage, protowire.BytesType)
		b = protowire.AppendString(b, e.Message)
	}
	b = protowire.AppendTag(b, fieldCreatedAtUnix, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.CreatedAt.UnixMilli()))
	return b
}

// Unmarshal decodes bytes produced by Marshal.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return e, fmt.Errorf("wireproto: invalid tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldFrom, fieldTo, fieldEvent, fieldMessage:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return e, fmt.Errorf("wireproto: invalid string field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			switch num {
			case fieldFrom:
				e.From = s
			case fieldTo:
				e.To = s
			case fieldEvent:
				e.Event = s
			case fieldMessage:
				e.Message = s
			}
		case fieldCreatedAtUnix:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return e, fmt.Errorf("wireproto: invalid varint field: %w", protowire.ParseError(n))
			}
			data = data[n:]
			e.CreatedAt = time.UnixMilli(int64(v))
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return e, fmt.Errorf("wireproto: skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return e, nil
}
