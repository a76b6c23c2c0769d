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

import "github.com/decentraland/friendship-interaction-engine/pkg/friendkind"

// transitionTable maps a new event to the set of previous events after
// which it is legal. The "no prior history" case is not in the table:
// Validate handles a nil last row directly (see requestAllowedOnEmpty).
// Built once, immutably, at package init (§9 "global lazy maps of
// transition rules").
var transitionTable = map[Event]map[Event]bool{
	Request: {Cancel: true, Reject: true, Delete: true},
	Cancel:  {Request: true},
	Accept:  {Request: true},
	Reject:  {Request: true},
	Delete:  {Accept: true},
}

// requestAllowedOnEmpty records that REQUEST is additionally legal when
// there is no prior history at all (§4.3's "none" entry).
const requestAllowedOnEmpty = true

// Validate reports whether newEvent is a legal transition given the pair's
// last history row (nil if the pair has no history yet) and the user
// producing newEvent. It implements the transition table plus the actor
// rules of §4.3 verbatim from the original state machine.
func Validate(last *History, newEvent Event, actingUser string) error {
	if !newEvent.Valid() {
		return friendkind.New(friendkind.BadRequest, "unknown friendship event")
	}

	if last == nil {
		if newEvent == Request {
			return nil
		}
		return friendkind.New(friendkind.BadRequest, "event requires an existing friendship history")
	}

	if last.Event == newEvent {
		return friendkind.New(friendkind.BadRequest, "event repeated back to back")
	}

	allowed := transitionTable[newEvent]
	if !allowed[last.Event] {
		return friendkind.New(friendkind.BadRequest, "event not allowed after previous event")
	}

	switch newEvent {
	case Request:
		if last.Event == Request && EqualAddress(last.ActingUser, actingUser) {
			return friendkind.New(friendkind.BadRequest, "cannot request again after your own prior request")
		}
	case Accept, Reject:
		if EqualAddress(last.ActingUser, actingUser) {
			return friendkind.New(friendkind.BadRequest, "accept/reject must come from the other party")
		}
	case Cancel:
		if !EqualAddress(last.ActingUser, actingUser) {
			return friendkind.New(friendkind.BadRequest, "cancel must come from the original requester")
		}
	case Delete:
		// either party may delete an active friendship.
	}
	return nil
}

// Compute derives the new Status for a pair after newEvent is accepted.
// Callers must call Validate first; Compute assumes the transition is legal.
func Compute(newEvent Event, actingUser string) (Status, string) {
	switch newEvent {
	case Request:
		return Requested, actingUser
	case Accept:
		return Friends, ""
	default: // Cancel, Reject, Delete
		return NotFriends, ""
	}
}
