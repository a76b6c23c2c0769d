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

package rpcfacade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/decentraland/friendship-interaction-engine/internal/chatbackend"
	"github.com/decentraland/friendship-interaction-engine/internal/domain"
	"github.com/decentraland/friendship-interaction-engine/internal/engine"
	"github.com/decentraland/friendship-interaction-engine/internal/registry"
	"github.com/decentraland/friendship-interaction-engine/internal/store"
	"github.com/decentraland/friendship-interaction-engine/pkg/friendkind"
)

type fakeIdentity struct {
	userByToken map[string]string
}

func (f *fakeIdentity) Resolve(ctx context.Context, token string) (string, error) {
	if u, ok := f.userByToken[token]; ok {
		return u, nil
	}
	return "", friendkind.New(friendkind.Unauthorized, "unknown token")
}

type fakeIterator struct {
	rows []*domain.Friendship
	i    int
}

func (it *fakeIterator) Next(ctx context.Context) bool {
	if it.i >= len(it.rows) {
		return false
	}
	it.i++
	return true
}
func (it *fakeIterator) Friendship() *domain.Friendship { return it.rows[it.i-1] }
func (it *fakeIterator) Err() error                     { return nil }
func (it *fakeIterator) Close() error                   { return nil }

type fakeTx struct{}

func (fakeTx) Commit(ctx context.Context) error   { return nil }
func (fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeStore struct {
	friends  []*domain.Friendship
	pending  []domain.RequestEvent
	lastHist map[string]*domain.History
}

var _ store.Store = (*fakeStore)(nil)

func (s *fakeStore) BeginTx(ctx context.Context) (store.Tx, error) { return fakeTx{}, nil }
func (s *fakeStore) GetFriendship(ctx context.Context, a, b string) (*domain.Friendship, error) {
	return nil, nil
}
func (s *fakeStore) GetUserFriends(ctx context.Context, user string, activeOnly bool) (store.FriendIterator, error) {
	return &fakeIterator{rows: s.friends}, nil
}
func (s *fakeStore) GetMutualFriends(ctx context.Context, u, v string) ([]string, error) {
	return nil, nil
}
func (s *fakeStore) CreateFriendship(ctx context.Context, tx store.Tx, a, b string, active bool, roomID string) (string, error) {
	return "fid", nil
}
func (s *fakeStore) UpdateIsActive(ctx context.Context, tx store.Tx, friendshipID string, active bool) error {
	return nil
}
func (s *fakeStore) AppendHistory(ctx context.Context, tx store.Tx, friendshipID string, event domain.Event, actingUser string, metadata *domain.HistoryMetadata) error {
	return nil
}
func (s *fakeStore) GetLastHistory(ctx context.Context, friendshipID string) (*domain.History, error) {
	return s.lastHist[friendshipID], nil
}
func (s *fakeStore) GetPendingRequestEvents(ctx context.Context, user string) ([]domain.RequestEvent, error) {
	return s.pending, nil
}
func (s *fakeStore) GetRequestEventHistory(ctx context.Context, friendshipID string, from, to int) ([]domain.History, error) {
	return nil, nil
}

// erroringStore wraps fakeStore to force GetUserFriends to fail, exercising
// GetFriends' mid-setup error path (after auth, before any page is sent).
type erroringStore struct {
	*fakeStore
}

func (s *erroringStore) GetUserFriends(ctx context.Context, user string, activeOnly bool) (store.FriendIterator, error) {
	return nil, friendkind.New(friendkind.Unknown, "store unavailable")
}

type fakeChat struct{}

func (fakeChat) GetOrCreateRoomForPair(ctx context.Context, token string, friendship *domain.Friendship, newEvent domain.Event, pair chatbackend.Pair) (string, error) {
	return "!room:chat.example.org", nil
}
func (fakeChat) SetAccountDirectMapping(ctx context.Context, token, actor, peer, roomID string) error {
	return nil
}
func (fakeChat) StoreMessageIfRequest(ctx context.Context, token, roomID string, event domain.Event, body string) error {
	return nil
}
func (fakeChat) StoreRoomEvent(ctx context.Context, token, roomID string, event domain.Event, body string) error {
	return nil
}

type fakePublisher struct{ published bool }

func (p *fakePublisher) PublishFriendshipEvent(ctx context.Context, from, to string, event domain.Event, message string) {
	p.published = true
}

func TestGetFriends_PaginatesAndTerminatesWithFinalPartialPage(t *testing.T) {
	friends := make([]*domain.Friendship, 0, 7)
	for i := 0; i < 7; i++ {
		friends = append(friends, &domain.Friendship{Address1: "alice", Address2: string(rune('a' + i))})
	}
	st := &fakeStore{friends: friends}
	f := New(&fakeIdentity{userByToken: map[string]string{"tok": "alice"}}, st, engine.New(st, fakeChat{}, &fakePublisher{}), registry.New(8, time.Second), 5)

	out := make(chan []User, 10)
	err := f.GetFriends(context.Background(), "tok", out)
	require.NoError(t, err)

	var pages [][]User
	for p := range out {
		pages = append(pages, p)
	}
	require.Len(t, pages, 2)
	require.Len(t, pages[0], 5)
	require.Len(t, pages[1], 2)
}

func TestGetFriends_UnauthorizedOnBadToken(t *testing.T) {
	st := &fakeStore{}
	f := New(&fakeIdentity{}, st, engine.New(st, fakeChat{}, &fakePublisher{}), registry.New(8, time.Second), 5)

	out := make(chan []User, 1)
	err := f.GetFriends(context.Background(), "bogus", out)
	require.Error(t, err)
	require.Equal(t, friendkind.Unauthorized, friendkind.As(err))

	_, ok := <-out
	require.False(t, ok, "out must be closed on the auth-failure path so a draining reader never blocks forever")
}

func TestGetFriends_ClosesOutOnStoreError(t *testing.T) {
	st := &erroringStore{fakeStore: &fakeStore{}}
	f := New(&fakeIdentity{userByToken: map[string]string{"tok": "alice"}}, st, engine.New(st, fakeChat{}, &fakePublisher{}), registry.New(8, time.Second), 5)

	out := make(chan []User, 1)
	err := f.GetFriends(context.Background(), "tok", out)
	require.Error(t, err)

	_, ok := <-out
	require.False(t, ok, "out must be closed on the store-error path so a draining reader never blocks forever")
}

func TestGetRequestEvents_PartitionsIncomingAndOutgoing(t *testing.T) {
	st := &fakeStore{pending: []domain.RequestEvent{
		{FriendshipID: "1", ActingUser: "alice", OtherUser: "bob", CreatedAt: time.Now()},
		{FriendshipID: "2", ActingUser: "carol", OtherUser: "alice", CreatedAt: time.Now()},
	}}
	f := New(&fakeIdentity{userByToken: map[string]string{"tok": "alice"}}, st, engine.New(st, fakeChat{}, &fakePublisher{}), registry.New(8, time.Second), 5)

	resp, err := f.GetRequestEvents(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, resp.Outgoing, 1)
	require.Len(t, resp.Incoming, 1)
}

func TestUpdateFriendshipEvent_RejectsSelfFriend(t *testing.T) {
	st := &fakeStore{}
	f := New(&fakeIdentity{userByToken: map[string]string{"tok": "alice"}}, st, engine.New(st, fakeChat{}, &fakePublisher{}), registry.New(8, time.Second), 5)

	_, err := f.UpdateFriendshipEvent(context.Background(), "tok", UpdateFriendshipEventRequest{Event: domain.Request, User: "alice"})
	require.Error(t, err)
	require.Equal(t, friendkind.BadRequest, friendkind.As(err))
}

func TestUpdateFriendshipEvent_RejectsMissingUserBeforeAuth(t *testing.T) {
	st := &fakeStore{}
	f := New(&fakeIdentity{}, st, engine.New(st, fakeChat{}, &fakePublisher{}), registry.New(8, time.Second), 5)

	_, err := f.UpdateFriendshipEvent(context.Background(), "bogus-token-never-checked", UpdateFriendshipEventRequest{Event: domain.Request})
	require.Error(t, err)
	require.Equal(t, friendkind.BadRequest, friendkind.As(err), "payload validation must fail before auth even runs")
}

func TestUpdateFriendshipEvent_RejectsUnknownEvent(t *testing.T) {
	st := &fakeStore{}
	f := New(&fakeIdentity{userByToken: map[string]string{"tok": "alice"}}, st, engine.New(st, fakeChat{}, &fakePublisher{}), registry.New(8, time.Second), 5)

	_, err := f.UpdateFriendshipEvent(context.Background(), "tok", UpdateFriendshipEventRequest{Event: domain.Event("poke"), User: "bob"})
	require.Error(t, err)
	require.Equal(t, friendkind.BadRequest, friendkind.As(err))
}

func TestUpdateFriendshipEvent_HappyPathPublishesAndDeliversLocally(t *testing.T) {
	st := &fakeStore{}
	reg := registry.New(8, time.Second)
	pub := &fakePublisher{}
	f := New(&fakeIdentity{userByToken: map[string]string{"tok": "alice"}}, st, engine.New(st, fakeChat{}, pub), reg, 5)

	sink := reg.Register("bob", "transport-1")
	resp, err := f.UpdateFriendshipEvent(context.Background(), "tok", UpdateFriendshipEventRequest{Event: domain.Request, User: "bob", Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, "bob", resp.User)
	require.True(t, pub.published)

	select {
	case u := <-sink:
		require.Equal(t, "alice", u.From)
		require.Equal(t, "bob", u.To)
	case <-time.After(time.Second):
		t.Fatal("expected local delivery to bob's sink")
	}
}

func TestSubscribeFriendshipEventsUpdates_RegistersAndCleansUp(t *testing.T) {
	reg := registry.New(8, time.Second)
	st := &fakeStore{}
	f := New(&fakeIdentity{userByToken: map[string]string{"tok": "alice"}}, st, engine.New(st, fakeChat{}, &fakePublisher{}), reg, 5)

	transportID, sink, err := f.SubscribeFriendshipEventsUpdates(context.Background(), "tok", reg)
	require.NoError(t, err)
	require.NotEmpty(t, transportID)

	reg.Deliver(context.Background(), "alice", registry.Update{From: "bob", To: "alice", Event: "accept"})
	select {
	case u := <-sink:
		require.Equal(t, "bob", u.From)
	case <-time.After(time.Second):
		t.Fatal("expected delivered update")
	}

	reg.OnTransportClosed(transportID)
	_, ok := <-sink
	require.False(t, ok, "sink should be closed after transport close")
}
