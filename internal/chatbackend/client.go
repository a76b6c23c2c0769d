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

// Package chatbackend implements C4: the adapter that keeps a 1:1 mapping
// between a friendship pair and a room in the external chat backend, and
// records friendship events as room-state events in that room.
//
// Grounded on the original components/synapse.rs HTTP client and
// ws/service/synapse_handler.rs orchestration (get_or_create_synapse_room_id,
// set_account_data, store_message_in_synapse_room's 3-attempt retry loop),
// reimplemented as a plain net/http client the way federation's SyncService
// (other_examples/9e4ffff8_WAN-Ninjas-AmityVox__internal-federation-sync.go.go)
// wraps a bare *http.Client with its own retry logic for an outbound call.
package chatbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/openimsdk/tools/log"

	"github.com/decentraland/friendship-interaction-engine/internal/domain"
	"github.com/decentraland/friendship-interaction-engine/pkg/friendkind"
	"github.com/decentraland/friendship-interaction-engine/pkg/retry"
)

// Pair is an unordered pair of addresses; the actor plus the other party.
type Pair struct {
	Actor string
	Other string
}

type Client struct {
	baseURL string
	client  *http.Client
}

// Satisfies engine.ChatBackend; asserted here (rather than in package
// engine) to avoid an import cycle back from engine to chatbackend for the
// sole purpose of the assertion.
var _ interface {
	GetOrCreateRoomForPair(ctx context.Context, token string, friendship *domain.Friendship, newEvent domain.Event, pair Pair) (string, error)
	SetAccountDirectMapping(ctx context.Context, token, actor, peer, roomID string) error
	StoreMessageIfRequest(ctx context.Context, token, roomID string, event domain.Event, body string) error
	StoreRoomEvent(ctx context.Context, token, roomID string, event domain.Event, body string) error
} = (*Client)(nil)

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return friendkind.Wrap(friendkind.Unknown, "marshal chat backend request", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return friendkind.Wrap(friendkind.Unknown, "build chat backend request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return friendkind.Wrap(friendkind.Unknown, "chat backend request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp errcodeResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return mapErrcode(errResp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return friendkind.Wrap(friendkind.Unknown, "decode chat backend response", err)
		}
	}
	return nil
}

type roomIDResponse struct {
	RoomID string `json:"room_id"`
}

type createRoomRequest struct {
	Preset   string   `json:"preset"`
	IsDirect bool     `json:"is_direct"`
	Invite   []string `json:"invite"`
	RoomAliasName string `json:"room_alias_name"`
}

// GetOrCreateRoomForPair implements §4.4.
func (c *Client) GetOrCreateRoomForPair(ctx context.Context, token string, friendship *domain.Friendship, newEvent domain.Event, pair Pair) (string, error) {
	if friendship != nil && friendship.ExternalRoomID != "" {
		return friendship.ExternalRoomID, nil
	}
	if friendship != nil {
		// A row exists but never got a room id assigned; that only
		// happens for REQUEST rows mid-creation, handled by the engine
		// holding the room id before the row is written (§4.5 step 2-6).
	}
	if newEvent != domain.Request {
		return "", friendkind.New(friendkind.BadRequest, "non-request event on a pair with no prior friendship")
	}

	alias := buildRoomAlias([]string{pair.Actor, pair.Other}, c.baseURL)

	var resolved roomIDResponse
	err := c.do(ctx, token, http.MethodGet, "/_matrix/client/r0/directory/room/"+alias, nil, &resolved)
	if err == nil {
		return resolved.RoomID, nil
	}
	if friendkind.As(err) != friendkind.Unknown && friendkind.As(err) != friendkind.NotFound {
		// A definitive rejection (forbidden/unauthorized/rate-limited)
		// should propagate rather than fall through to room creation.
		return "", err
	}

	var created roomIDResponse
	createBody := createRoomRequest{
		Preset:        "trusted_private_chat",
		IsDirect:      true,
		Invite:        []string{pair.Other},
		RoomAliasName: alias,
	}
	if err := c.do(ctx, token, http.MethodPost, "/_matrix/client/r0/createRoom", createBody, &created); err != nil {
		return "", err
	}
	return created.RoomID, nil
}

type directAccountData struct {
	Direct map[string][]string `json:"direct"`
}

// SetAccountDirectMapping implements §4.4's idempotent read-modify-write.
func (c *Client) SetAccountDirectMapping(ctx context.Context, token, actor, peer, roomID string) error {
	path := fmt.Sprintf("/_matrix/client/r0/user/%s/account_data/m.direct", url.PathEscape(actor))

	var current directAccountData
	if err := c.do(ctx, token, http.MethodGet, path, nil, &current); err != nil && friendkind.As(err) != friendkind.NotFound {
		return err
	}
	if current.Direct == nil {
		current.Direct = map[string][]string{}
	}

	rooms, ok := current.Direct[peer]
	if ok {
		for _, r := range rooms {
			if r == roomID {
				return nil // already mapped, idempotent no-op.
			}
		}
	}
	current.Direct[peer] = []string{roomID}
	return c.do(ctx, token, http.MethodPut, path, current, nil)
}

type roomEventBody struct {
	Event   string `json:"event"`
	Message string `json:"message,omitempty"`
}

// StoreRoomEvent puts a typed state event recording the friendship event.
func (c *Client) StoreRoomEvent(ctx context.Context, token, roomID string, event domain.Event, body string) error {
	path := fmt.Sprintf("/_matrix/client/r0/rooms/%s/state/org.decentraland.friendship", url.PathEscape(roomID))
	return c.do(ctx, token, http.MethodPut, path, roomEventBody{Event: string(event), Message: body}, nil)
}

type messageEventBody struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// SendMessage posts a message event with an idempotent transaction id.
func (c *Client) SendMessage(ctx context.Context, token, roomID, body string) error {
	txnID := "m." + strconv.FormatInt(time.Now().UnixMilli(), 10)
	path := fmt.Sprintf("/_matrix/client/r0/rooms/%s/send/m.room.message/%s", url.PathEscape(roomID), txnID)
	return c.do(ctx, token, http.MethodPut, path, messageEventBody{MsgType: "m.text", Body: body}, nil)
}

// StoreMessageIfRequest implements §4.4's 3-attempt retry policy: only
// sends when event==REQUEST and body is non-empty.
func (c *Client) StoreMessageIfRequest(ctx context.Context, token, roomID string, event domain.Event, body string) error {
	if event != domain.Request || body == "" {
		return nil
	}
	err := retry.Do(ctx, 3, "chatbackend.send_message", func(ctx context.Context) error {
		return c.SendMessage(ctx, token, roomID, body)
	})
	if err != nil {
		log.ZError(ctx, "failed to store request message after retries", err, "roomID", roomID)
		return friendkind.Wrap(friendkind.As(err), "store request message", err)
	}
	return nil
}
