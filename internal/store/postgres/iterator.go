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

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/decentraland/friendship-interaction-engine/internal/domain"
	"github.com/decentraland/friendship-interaction-engine/internal/store"
	"github.com/decentraland/friendship-interaction-engine/pkg/friendkind"
)

// friendIterator is the lazy cursor backing GetUserFriends (§4.2), a plain
// wrapper over pgx.Rows with server-side cursor semantics via pgx's own
// row-at-a-time fetch.
type friendIterator struct {
	rows pgx.Rows
	user string
	cur  *domain.Friendship
	err  error
}

func (it *friendIterator) Next(ctx context.Context) bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	var f domain.Friendship
	var roomID *string
	if err := it.rows.Scan(&f.ID, &f.Address1, &f.Address2, &f.IsActive, &roomID, &f.CreatedAt); err != nil {
		it.err = friendkind.Wrap(friendkind.Unknown, "scan friend row", err)
		return false
	}
	if roomID != nil {
		f.ExternalRoomID = *roomID
	}
	it.cur = &f
	return true
}

func (it *friendIterator) Friendship() *domain.Friendship { return it.cur }
func (it *friendIterator) Err() error                     { return it.err }
func (it *friendIterator) Close() error                   { it.rows.Close(); return nil }

func (s *Store) GetUserFriends(ctx context.Context, user string, activeOnly bool) (store.FriendIterator, error) {
	query := `
		SELECT id, address_1, address_2, is_active, external_room_id, created_at
		FROM friendships
		WHERE (lower(address_1) = lower($1) OR lower(address_2) = lower($1))`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, user)
	if err != nil {
		return nil, friendkind.Wrap(friendkind.Unknown, "get user friends", err)
	}
	return &friendIterator{rows: rows, user: user}, nil
}
