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

// Package rpcfacade implements C8: it maps the four RPC procedures to
// C1 (auth), C5 (engine), C2 (store) and C6 (registry), and converts domain
// errors to the wire error taxonomy. The transport-independent logic lives
// here; the WebSocket framing lives in ws.go, grounded on
// internal/msggateway's use of gorilla/websocket for the teacher's own
// client-facing transport.
package rpcfacade

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/openimsdk/tools/log"

	"github.com/decentraland/friendship-interaction-engine/internal/domain"
	"github.com/decentraland/friendship-interaction-engine/internal/engine"
	"github.com/decentraland/friendship-interaction-engine/internal/registry"
	"github.com/decentraland/friendship-interaction-engine/internal/store"
	"github.com/decentraland/friendship-interaction-engine/pkg/friendkind"
)

// validate is shared across requests, matching the teacher's msggateway
// handler which keeps a single *validator.Validate on the handler struct
// rather than allocating one per call.
var validate = validator.New()

// IdentityResolver is the subset of C1 the facade needs.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// LocalNotifier lets the facade push directly into C6 as the low-latency
// optimization described in §4.8, parallel to the bus round trip.
type LocalNotifier interface {
	Deliver(ctx context.Context, userID string, update registry.Update)
}

type Facade struct {
	identity IdentityResolver
	store    store.Store
	engine   *engine.Engine
	registry LocalNotifier
	pageSize int
}

func New(identity IdentityResolver, st store.Store, eng *engine.Engine, reg LocalNotifier, pageSize int) *Facade {
	if pageSize <= 0 {
		pageSize = 5
	}
	return &Facade{identity: identity, store: st, engine: eng, registry: reg, pageSize: pageSize}
}

func (f *Facade) auth(ctx context.Context, token string) (string, error) {
	userID, err := f.identity.Resolve(ctx, token)
	if err != nil {
		return "", err
	}
	return userID, nil
}

// User is the wire shape for GetFriends' stream pages.
type User struct {
	Address string `json:"address"`
}

// GetFriends implements §4.8: resolves the user, streams pages of up to
// pageSize users (N=5 default), terminated on success by a final (possibly
// empty) page. out is always closed before return on every exit path —
// including auth failure, store error, and mid-stream iterator error, none
// of which send a terminal page — so a caller draining it never blocks
// forever; the error, if any, is this method's return value, not something
// carried over the channel.
func (f *Facade) GetFriends(ctx context.Context, token string, out chan<- []User) error {
	defer close(out)

	userID, err := f.auth(ctx, token)
	if err != nil {
		recordCall("GetFriends", err)
		return err
	}

	it, err := f.store.GetUserFriends(ctx, userID, true)
	if err != nil {
		recordCall("GetFriends", err)
		return err
	}
	defer it.Close()

	send := func(p []User) error {
		select {
		case out <- p:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	page := make([]User, 0, f.pageSize)
	for it.Next(ctx) {
		fr := it.Friendship()
		page = append(page, User{Address: fr.OtherAddress(userID)})
		if len(page) == f.pageSize {
			if err := send(page); err != nil {
				recordCall("GetFriends", err)
				return err
			}
			page = make([]User, 0, f.pageSize)
		}
	}
	if err := it.Err(); err != nil {
		recordCall("GetFriends", err)
		return err
	}
	if err := send(page); err != nil {
		recordCall("GetFriends", err)
		return err
	}
	recordCall("GetFriends", nil)
	return nil
}

// RequestEventEntry is the wire shape of a pending request (§4.8).
type RequestEventEntry struct {
	User      string `json:"user"`
	CreatedAt int64  `json:"created_at"`
	Message   string `json:"message,omitempty"`
}

type RequestEventsResponse struct {
	Incoming []RequestEventEntry `json:"incoming"`
	Outgoing []RequestEventEntry `json:"outgoing"`
}

func (f *Facade) GetRequestEvents(ctx context.Context, token string) (*RequestEventsResponse, error) {
	userID, err := f.auth(ctx, token)
	if err != nil {
		recordCall("GetRequestEvents", err)
		return nil, err
	}

	events, err := f.store.GetPendingRequestEvents(ctx, userID)
	if err != nil {
		recordCall("GetRequestEvents", err)
		return nil, err
	}

	resp := &RequestEventsResponse{}
	for _, e := range events {
		entry := RequestEventEntry{User: e.OtherUser, CreatedAt: e.CreatedAt.UnixMilli(), Message: e.Message}
		if domain.EqualAddress(e.ActingUser, userID) {
			resp.Outgoing = append(resp.Outgoing, entry)
		} else {
			resp.Incoming = append(resp.Incoming, entry)
		}
	}
	recordCall("GetRequestEvents", nil)
	return resp, nil
}

// UpdateFriendshipEventRequest is the wire shape of the tagged union input
// (§6), flattened: Event names the one_of variant, User is its target user
// (both required), and Message is the optional request message.
type UpdateFriendshipEventRequest struct {
	Event   domain.Event `json:"event" validate:"required,oneof=request cancel accept reject delete"`
	User    string       `json:"user" validate:"required"`
	Message string       `json:"message,omitempty" validate:"omitempty,max=500"`
}

type UpdateFriendshipResponse struct {
	Event    string `json:"event"`
	User     string `json:"user"`
	IsActive bool   `json:"is_active"`
}

func (f *Facade) UpdateFriendshipEvent(ctx context.Context, token string, req UpdateFriendshipEventRequest) (*UpdateFriendshipResponse, error) {
	if err := validate.Struct(&req); err != nil {
		err = friendkind.Wrap(friendkind.BadRequest, "invalid request payload", err)
		recordCall("UpdateFriendshipEvent", err)
		return nil, err
	}

	userID, err := f.auth(ctx, token)
	if err != nil {
		recordCall("UpdateFriendshipEvent", err)
		return nil, err
	}

	res, err := f.engine.Update(ctx, engine.AuthContext{UserID: userID, Token: token}, engine.Payload{
		Event:     req.Event,
		OtherUser: req.User,
		Message:   req.Message,
	})
	if err != nil {
		recordCall("UpdateFriendshipEvent", err)
		return nil, err
	}

	// Local direct delivery as a latency optimization, in addition to the
	// bus round trip the engine already triggered (§4.8, idempotent —
	// subscribers dedupe on (from,to,event,created_at) per §8 invariant 4).
	if f.registry != nil {
		f.registry.Deliver(ctx, res.OtherUser, registry.Update{
			From:    userID,
			To:      res.OtherUser,
			Event:   string(res.Event),
			Message: req.Message,
		})
	}

	recordCall("UpdateFriendshipEvent", nil)
	return &UpdateFriendshipResponse{Event: string(res.Event), User: res.OtherUser, IsActive: res.IsActive}, nil
}

// SubscribeFriendshipEventsUpdates implements §4.8: registers a sink in C6
// keyed by the caller. The returned transportID must be passed to
// registry.OnTransportClosed when the transport goes away.
func (f *Facade) SubscribeFriendshipEventsUpdates(ctx context.Context, token string, reg *registry.Registry) (string, registry.Sink, error) {
	userID, err := f.auth(ctx, token)
	if err != nil {
		recordCall("SubscribeFriendshipEventsUpdates", err)
		return "", nil, err
	}
	transportID := uuid.NewString()
	sink := reg.Register(userID, transportID)
	recordCall("SubscribeFriendshipEventsUpdates", nil)
	log.ZInfo(ctx, "subscription registered", "userID", userID, "transportID", transportID)
	return transportID, sink, nil
}
