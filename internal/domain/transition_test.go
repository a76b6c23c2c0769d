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

package domain

import (
	"testing"

	"github.com/decentraland/friendship-interaction-engine/pkg/friendkind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "alice"
	bob   = "bob"
)

func TestValidate_NoHistory(t *testing.T) {
	require.NoError(t, Validate(nil, Request, alice))

	for _, e := range []Event{Cancel, Accept, Reject, Delete} {
		err := Validate(nil, e, alice)
		require.Error(t, err)
		assert.Equal(t, friendkind.BadRequest, friendkind.As(err))
	}
}

func TestValidate_ExhaustiveTransitionTable(t *testing.T) {
	allEvents := []Event{Request, Cancel, Accept, Reject, Delete}

	type want struct {
		sameActorOK bool
		otherOK     bool
	}
	// Expected legality of (lastEvent -> newEvent) by actor relative to the
	// user who produced lastEvent, derived straight from §4.3.
	table := map[Event]map[Event]want{
		Request: {
			Request: {false, false},
			Cancel:  {true, false},
			Accept:  {false, true},
			Reject:  {false, true},
			Delete:  {false, false},
		},
		Cancel: {
			Request: {false, false},
			Cancel:  {false, false},
			Accept:  {false, false},
			Reject:  {false, false},
			Delete:  {false, false},
		},
		Accept: {
			Request: {false, false},
			Cancel:  {false, false},
			Accept:  {false, false},
			Reject:  {false, false},
			Delete:  {true, true},
		},
		Reject: {
			Request: {true, true},
			Cancel:  {false, false},
			Accept:  {false, false},
			Reject:  {false, false},
			Delete:  {false, false},
		},
		Delete: {
			Request: {true, true},
			Cancel:  {false, false},
			Accept:  {false, false},
			Reject:  {false, false},
			Delete:  {false, false},
		},
	}

	for _, last := range allEvents {
		for _, next := range allEvents {
			w := table[last][next]
			lastRow := &History{Event: last, ActingUser: alice}

			errSame := Validate(lastRow, next, alice)
			if w.sameActorOK {
				assert.NoError(t, errSame, "last=%s next=%s actor=same", last, next)
			} else {
				assert.Error(t, errSame, "last=%s next=%s actor=same", last, next)
			}

			errOther := Validate(lastRow, next, bob)
			if w.otherOK {
				assert.NoError(t, errOther, "last=%s next=%s actor=other", last, next)
			} else {
				assert.Error(t, errOther, "last=%s next=%s actor=other", last, next)
			}
		}
	}
}

func TestCompute(t *testing.T) {
	status, by := Compute(Request, alice)
	assert.Equal(t, Requested, status)
	assert.Equal(t, alice, by)

	status, _ = Compute(Accept, bob)
	assert.Equal(t, Friends, status)

	for _, e := range []Event{Cancel, Reject, Delete} {
		status, _ = Compute(e, alice)
		assert.Equal(t, NotFriends, status)
	}
}

func TestEqualAddressAndNormalizePair(t *testing.T) {
	assert.True(t, EqualAddress("Alice", "alice"))
	assert.False(t, EqualAddress("Alice", "bob"))

	a, b := NormalizePair("Bob", "alice")
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)
}
