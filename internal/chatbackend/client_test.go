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

package chatbackend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/decentraland/friendship-interaction-engine/internal/domain"
	"github.com/decentraland/friendship-interaction-engine/pkg/friendkind"
)

func TestGetOrCreateRoomForPair_ReturnsExistingRoom(t *testing.T) {
	c := New("https://chat.example.org", time.Second)
	friendship := &domain.Friendship{ExternalRoomID: "!abc:chat.example.org"}

	roomID, err := c.GetOrCreateRoomForPair(context.Background(), "tok", friendship, domain.Accept, Pair{Actor: "alice", Other: "bob"})
	require.NoError(t, err)
	require.Equal(t, "!abc:chat.example.org", roomID)
}

func TestGetOrCreateRoomForPair_RejectsNonRequestOnFreshPair(t *testing.T) {
	c := New("https://chat.example.org", time.Second)
	_, err := c.GetOrCreateRoomForPair(context.Background(), "tok", nil, domain.Accept, Pair{Actor: "alice", Other: "bob"})
	require.Error(t, err)
	require.Equal(t, friendkind.BadRequest, friendkind.As(err))
}

func TestGetOrCreateRoomForPair_CreatesWhenAliasNotFound(t *testing.T) {
	var created bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(errcodeResponse{Errcode: "M_NOT_FOUND", Error: "no such room"})
		case r.Method == http.MethodPost:
			created = true
			_ = json.NewEncoder(w).Encode(roomIDResponse{RoomID: "!new:chat.example.org"})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	roomID, err := c.GetOrCreateRoomForPair(context.Background(), "tok", nil, domain.Request, Pair{Actor: "alice", Other: "bob"})
	require.NoError(t, err)
	require.Equal(t, "!new:chat.example.org", roomID)
	require.True(t, created)
}

func TestSetAccountDirectMapping_IdempotentNoOpWhenAlreadyMapped(t *testing.T) {
	var putCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(directAccountData{Direct: map[string][]string{"bob": {"!room:chat.example.org"}}})
		case http.MethodPut:
			putCalled = true
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.SetAccountDirectMapping(context.Background(), "tok", "alice", "bob", "!room:chat.example.org")
	require.NoError(t, err)
	require.False(t, putCalled, "already-mapped room should not trigger a write")
}

func TestSetAccountDirectMapping_WritesWhenMissing(t *testing.T) {
	var putBody directAccountData
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(directAccountData{})
		case http.MethodPut:
			_ = json.NewDecoder(r.Body).Decode(&putBody)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.SetAccountDirectMapping(context.Background(), "tok", "alice", "bob", "!room:chat.example.org")
	require.NoError(t, err)
	require.Equal(t, []string{"!room:chat.example.org"}, putBody.Direct["bob"])
}

func TestStoreMessageIfRequest_SkipsNonRequestEvents(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.StoreMessageIfRequest(context.Background(), "tok", "!room:x", domain.Accept, "hi")
	require.NoError(t, err)
	require.False(t, called)
}

func TestStoreMessageIfRequest_RetriesThenFails(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(errcodeResponse{Errcode: "M_FORBIDDEN", Error: "nope"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.StoreMessageIfRequest(context.Background(), "tok", "!room:x", domain.Request, "hi")
	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, friendkind.Forbidden, friendkind.As(err))
}

func TestMapErrcode_Table(t *testing.T) {
	cases := map[string]friendkind.Kind{
		"M_FORBIDDEN":      friendkind.Forbidden,
		"M_UNKNOWN_TOKEN":  friendkind.Unauthorized,
		"M_MISSING_TOKEN":  friendkind.Unauthorized,
		"M_LIMIT_EXCEEDED": friendkind.TooManyRequests,
		"M_SOMETHING_ELSE": friendkind.Unknown,
	}
	for errcode, want := range cases {
		err := mapErrcode(errcodeResponse{Errcode: errcode, Error: "x"})
		require.Equal(t, want, friendkind.As(err), errcode)
	}
}
