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

// Package engine implements C5, the Interaction Engine: the critical path
// that orchestrates C1-C4 inside one database transaction per update.
//
// Grounded on the original ws/service/event_handlers.rs process_room_event
// (the exact 10-step sequence this Update method follows) and on the
// teacher's controller.FriendDatabase.AgreeFriendRequest, whose
// f.tx.Transaction(ctx, func(ctx) error {...}) closure is the idiom Update's
// transaction handling follows (acquire handle, pass it through store
// calls, single exit path that commits or rolls back).
package engine

import (
	"context"

	"github.com/openimsdk/tools/log"

	"github.com/decentraland/friendship-interaction-engine/internal/chatbackend"
	"github.com/decentraland/friendship-interaction-engine/internal/domain"
	"github.com/decentraland/friendship-interaction-engine/internal/store"
	"github.com/decentraland/friendship-interaction-engine/pkg/friendkind"
)

// AuthContext replaces ambient request-scoped storage (§9): every engine
// call takes one explicitly instead of reaching into a request extension.
type AuthContext struct {
	UserID string
	Token  string
}

// ChatBackend is the subset of C4 the engine drives.
type ChatBackend interface {
	GetOrCreateRoomForPair(ctx context.Context, token string, friendship *domain.Friendship, newEvent domain.Event, pair chatbackend.Pair) (string, error)
	SetAccountDirectMapping(ctx context.Context, token, actor, peer, roomID string) error
	StoreMessageIfRequest(ctx context.Context, token, roomID string, event domain.Event, body string) error
	StoreRoomEvent(ctx context.Context, token, roomID string, event domain.Event, body string) error
}

// Publisher is the subset of C7 the engine drives after commit.
type Publisher interface {
	PublishFriendshipEvent(ctx context.Context, from, to string, event domain.Event, message string)
}

// Payload is the caller-supplied request for UpdateFriendshipEvent (§6).
type Payload struct {
	Event     domain.Event
	OtherUser string
	Message   string
}

// Result is what the engine hands back to C8 on success.
type Result struct {
	FriendshipID string
	Event        domain.Event
	OtherUser    string
	IsActive     bool
}

type Engine struct {
	store store.Store
	chat  ChatBackend
	pub   Publisher
}

func New(s store.Store, chat ChatBackend, pub Publisher) *Engine {
	return &Engine{store: s, chat: chat, pub: pub}
}

// Update runs the full §4.5 algorithm.
func (e *Engine) Update(ctx context.Context, auth AuthContext, payload Payload) (*Result, error) {
	actingUser := auth.UserID
	otherUser := payload.OtherUser
	if otherUser == "" || !payload.Event.Valid() {
		return nil, friendkind.New(friendkind.BadRequest, "missing or invalid event payload")
	}
	if domain.EqualAddress(actingUser, otherUser) {
		return nil, friendkind.New(friendkind.BadRequest, "cannot friend yourself")
	}

	log.ZDebug(ctx, "engine update start", "actingUser", actingUser, "otherUser", otherUser, "event", payload.Event)

	// Step 1.
	friendship, err := e.store.GetFriendship(ctx, actingUser, otherUser)
	if err != nil {
		return nil, err
	}

	// Step 2.
	roomID, err := e.chat.GetOrCreateRoomForPair(ctx, auth.Token, friendship, payload.Event, chatbackend.Pair{Actor: actingUser, Other: otherUser})
	if err != nil {
		return nil, err
	}

	// Step 3 — fatal per DESIGN.md OQ1: a failed direct-mapping write
	// would leave a provisioned room with no way for the actor's client
	// to discover it, so the whole update aborts rather than proceeding.
	if err := e.chat.SetAccountDirectMapping(ctx, auth.Token, actingUser, otherUser, roomID); err != nil {
		log.ZError(ctx, "set account direct mapping failed, aborting update", err, "actingUser", actingUser)
		return nil, err
	}

	// Step 4.
	var friendshipID string
	if friendship != nil {
		friendshipID = friendship.ID
	}
	last, err := e.store.GetLastHistory(ctx, friendshipID)
	if err != nil {
		return nil, err
	}

	// Step 5.
	if err := domain.Validate(last, payload.Event, actingUser); err != nil {
		return nil, err
	}
	newStatus, _ := domain.Compute(payload.Event, actingUser)

	// Step 6: the engine owns the transaction handle for the rest of the
	// critical section (§9).
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			if rerr := tx.Rollback(ctx); rerr != nil {
				log.ZWarn(ctx, "rollback failed", rerr, "actingUser", actingUser)
			}
		}
	}()

	if friendship == nil {
		friendshipID, err = e.store.CreateFriendship(ctx, tx, actingUser, otherUser, newStatus == domain.Friends, roomID)
		if err != nil {
			return nil, err
		}
	} else {
		if err := e.store.UpdateIsActive(ctx, tx, friendshipID, newStatus == domain.Friends); err != nil {
			return nil, err
		}
	}

	metadata := &domain.HistoryMetadata{Message: payload.Message, ExternalRoomID: roomID}
	if err := e.store.AppendHistory(ctx, tx, friendshipID, payload.Event, actingUser, metadata); err != nil {
		return nil, err
	}

	// Step 7.
	if err := e.chat.StoreMessageIfRequest(ctx, auth.Token, roomID, payload.Event, payload.Message); err != nil {
		return nil, err
	}

	// Step 8.
	if err := e.chat.StoreRoomEvent(ctx, auth.Token, roomID, payload.Event, payload.Message); err != nil {
		return nil, err
	}

	// Step 9.
	if err := tx.Commit(ctx); err != nil {
		return nil, friendkind.Wrap(friendkind.Unknown, "commit friendship update", err)
	}
	committed = true

	// Step 10: fire-and-forget; failures are logged inside the publisher.
	if e.pub != nil {
		e.pub.PublishFriendshipEvent(ctx, actingUser, otherUser, payload.Event, payload.Message)
	}

	log.ZInfo(ctx, "engine update committed", "actingUser", actingUser, "otherUser", otherUser, "event", payload.Event, "isActive", newStatus == domain.Friends)

	return &Result{
		FriendshipID: friendshipID,
		Event:        payload.Event,
		OtherUser:    otherUser,
		IsActive:     newStatus == domain.Friends,
	}, nil
}
