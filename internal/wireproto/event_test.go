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

package wireproto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	e := Event{
		From:      "alice",
		To:        "bob",
		Event:     "request",
		Message:   "hey, let's be friends",
		CreatedAt: time.UnixMilli(1700000000123),
	}

	data := Marshal(e)
	got, err := Unmarshal(data)
	require.NoError(t, err)

	require.Equal(t, e.From, got.From)
	require.Equal(t, e.To, got.To)
	require.Equal(t, e.Event, got.Event)
	require.Equal(t, e.Message, got.Message)
	require.Equal(t, e.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
}

func TestMarshalOmitsEmptyMessage(t *testing.T) {
	e := Event{From: "alice", To: "bob", Event: "cancel", CreatedAt: time.UnixMilli(1700000000000)}
	data := Marshal(e)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.Empty(t, got.Message)
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	known := Marshal(Event{From: "a", To: "b", Event: "accept", CreatedAt: time.UnixMilli(1)})

	// Prepend an unknown varint field (field 99) the decoder must skip.
	var prefix []byte
	prefix = protowire.AppendTag(prefix, 99, protowire.VarintType)
	prefix = protowire.AppendVarint(prefix, 7)
	data := append(prefix, known...)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, "a", got.From)
	require.Equal(t, "b", got.To)
	require.Equal(t, "accept", got.Event)
}

func TestUnmarshalRejectsTruncatedTag(t *testing.T) {
	_, err := Unmarshal([]byte{0xff})
	require.Error(t, err)
}
