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

// ws.go implements the WebSocket RPC framing described in §6: a JSON
// envelope carrying one of the four procedure names plus its input, with a
// tagged-union response. Grounded on internal/msggateway's use of
// gorilla/websocket for the teacher's own client-facing connections
// (upgrade, per-connection read/write goroutines, connection-scoped
// cleanup on close feeding into the subscription registry).
package rpcfacade

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openimsdk/tools/log"

	"github.com/decentraland/friendship-interaction-engine/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type frame struct {
	Procedure string          `json:"procedure"`
	AuthToken string          `json:"auth_token"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type response struct {
	Procedure   string     `json:"procedure"`
	Data        any        `json:"data,omitempty"`
	Error       *WireError `json:"error,omitempty"`
	EndOfStream bool       `json:"end_of_stream,omitempty"`
}

// Server wires the Facade and the Subscription Registry to a WebSocket
// listener; one goroutine per connection, matching §5's scheduling model.
type Server struct {
	facade   *Facade
	registry *registry.Registry
}

func NewServer(f *Facade, reg *registry.Registry) *Server {
	return &Server{facade: f, registry: reg}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ZError(r.Context(), "websocket upgrade failed", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeMu chanMutex
	writeMu.init()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		go s.dispatch(ctx, conn, &writeMu, f)
	}
}

// chanMutex is a trivial mutex built on a buffered channel, matching the
// teacher's preference for channel-based synchronization around a single
// shared *websocket.Conn writer (gorilla/websocket connections are not
// safe for concurrent writers).
type chanMutex chan struct{}

func (m *chanMutex) init()    { *m = make(chan struct{}, 1); *m <- struct{}{} }
func (m *chanMutex) lock()    { <-*m }
func (m *chanMutex) unlock()  { *m <- struct{}{} }

func (s *Server) writeJSON(conn *websocket.Conn, mu *chanMutex, v any) error {
	mu.lock()
	defer mu.unlock()
	return conn.WriteJSON(v)
}

func (s *Server) dispatch(ctx context.Context, conn *websocket.Conn, mu *chanMutex, f frame) {
	switch f.Procedure {
	case "GetFriends":
		// pages is always closed by GetFriends before it returns, on every
		// exit path (auth failure, store error, mid-stream iterator error,
		// or success) — draining it here with a select alongside ctx.Done()
		// rather than a bare `range` means this goroutine terminates even
		// if the connection goes away mid-stream or GetFriends fails before
		// ever sending a page, instead of blocking forever waiting for a
		// send that will never come. Each page is held back until the next
		// one arrives, so the final page can carry EndOfStream.
		pages := make(chan []User)
		errCh := make(chan error, 1)
		go func() { errCh <- s.facade.GetFriends(ctx, f.AuthToken, pages) }()

		var held []User
		havePage := false
	drain:
		for {
			select {
			case page, ok := <-pages:
				if !ok {
					break drain
				}
				if havePage {
					_ = s.writeJSON(conn, mu, response{Procedure: f.Procedure, Data: held})
				}
				held, havePage = page, true
			case <-ctx.Done():
				break drain
			}
		}
		err := <-errCh
		if havePage {
			_ = s.writeJSON(conn, mu, response{Procedure: f.Procedure, Data: held, EndOfStream: err == nil})
		}
		if err != nil {
			_ = s.writeJSON(conn, mu, response{Procedure: f.Procedure, Error: toWireError(err)})
		}

	case "GetRequestEvents":
		resp, err := s.facade.GetRequestEvents(ctx, f.AuthToken)
		if err != nil {
			_ = s.writeJSON(conn, mu, response{Procedure: f.Procedure, Error: toWireError(err)})
			return
		}
		_ = s.writeJSON(conn, mu, response{Procedure: f.Procedure, Data: resp})

	case "UpdateFriendshipEvent":
		var req UpdateFriendshipEventRequest
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			_ = s.writeJSON(conn, mu, response{Procedure: f.Procedure, Error: &WireError{Kind: "BadRequestError", Message: "malformed payload"}})
			return
		}
		resp, err := s.facade.UpdateFriendshipEvent(ctx, f.AuthToken, req)
		if err != nil {
			_ = s.writeJSON(conn, mu, response{Procedure: f.Procedure, Error: toWireError(err)})
			return
		}
		_ = s.writeJSON(conn, mu, response{Procedure: f.Procedure, Data: resp})

	case "SubscribeFriendshipEventsUpdates":
		transportID, sink, err := s.facade.SubscribeFriendshipEventsUpdates(ctx, f.AuthToken, s.registry)
		if err != nil {
			_ = s.writeJSON(conn, mu, response{Procedure: f.Procedure, Error: toWireError(err)})
			return
		}
		defer s.registry.OnTransportClosed(transportID)
		for {
			select {
			case update, ok := <-sink:
				if !ok {
					return
				}
				_ = s.writeJSON(conn, mu, response{Procedure: f.Procedure, Data: update})
			case <-ctx.Done():
				return
			case <-time.After(30 * time.Second):
				// idle keepalive tick; a real deployment would ping the
				// transport here to detect half-open connections.
			}
		}

	default:
		_ = s.writeJSON(conn, mu, response{Procedure: f.Procedure, Error: &WireError{Kind: "BadRequestError", Message: "unknown procedure"}})
	}
}
