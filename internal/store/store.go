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

// Package store defines C2's public contract. The concrete implementation
// lives in the postgres subpackage; everything here is storage-engine
// agnostic domain surface, mirroring how the teacher separates
// pkg/common/storage/database (interfaces) from its mongo implementation.
package store

import (
	"context"
	"io"

	"github.com/decentraland/friendship-interaction-engine/internal/domain"
)

// Tx is an engine-owned transaction handle (§9 "scoped transactions"). The
// Interaction Engine acquires one, threads it through every store call in
// its critical section, and commits or rolls it back on every exit path.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// FriendIterator is the lazy, restartable cursor backing GetUserFriends.
type FriendIterator interface {
	// Next advances the cursor and reports whether a row is available.
	Next(ctx context.Context) bool
	// Friendship returns the current row; valid only after Next returns true.
	Friendship() *domain.Friendship
	// Err returns the first error encountered by Next, if any.
	Err() error
	io.Closer
}

// Store is C2's full public contract (§4.2).
type Store interface {
	// BeginTx opens the transaction the engine owns for the critical
	// section of §4.5 step 6.
	BeginTx(ctx context.Context) (Tx, error)

	GetFriendship(ctx context.Context, a, b string) (*domain.Friendship, error)
	GetUserFriends(ctx context.Context, user string, activeOnly bool) (FriendIterator, error)
	GetMutualFriends(ctx context.Context, u, v string) ([]string, error)

	CreateFriendship(ctx context.Context, tx Tx, a, b string, active bool, roomID string) (string, error)
	UpdateIsActive(ctx context.Context, tx Tx, friendshipID string, active bool) error
	AppendHistory(ctx context.Context, tx Tx, friendshipID string, event domain.Event, actingUser string, metadata *domain.HistoryMetadata) error

	GetLastHistory(ctx context.Context, friendshipID string) (*domain.History, error)
	GetPendingRequestEvents(ctx context.Context, user string) ([]domain.RequestEvent, error)
	GetRequestEventHistory(ctx context.Context, friendshipID string, from, to int) ([]domain.History, error)
}
