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

// Package postgres implements C2's Store contract against PostgreSQL via
// pgx. The layered shape (Store wraps a *pgxpool.Pool; callers pass a Tx
// acquired via BeginTx through the write path) is grounded on the teacher's
// controller.FriendDatabase, which wraps a Mongo-session-scoped
// tx.Transaction closure the same way; the storage engine and the exact
// queries are grounded on the original Rust db/friendships_handler.rs
// (get_friendship / get_last_history / store_friendship_update /
// update_friendship_status).
package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openimsdk/tools/log"

	"github.com/decentraland/friendship-interaction-engine/internal/domain"
	"github.com/decentraland/friendship-interaction-engine/internal/store"
	"github.com/decentraland/friendship-interaction-engine/pkg/friendkind"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// tx wraps a pgx.Tx so store.Tx stays storage-engine agnostic.
type tx struct {
	pgx.Tx
}

func (t *tx) Commit(ctx context.Context) error   { return t.Tx.Commit(ctx) }
func (t *tx) Rollback(ctx context.Context) error { return t.Tx.Rollback(ctx) }

// BeginTx opens a serializable transaction: §5 requires that two concurrent
// updates on the same pair cannot both observe the same "last" row.
func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	pt, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, friendkind.Wrap(friendkind.Unknown, "begin transaction", err)
	}
	return &tx{Tx: pt}, nil
}

func unwrapTx(t store.Tx) pgx.Tx {
	if t == nil {
		return nil
	}
	return t.(*tx).Tx
}

// querier abstracts over *pgxpool.Pool and pgx.Tx so read paths can run
// either inside or outside the engine's transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

func (s *Store) GetFriendship(ctx context.Context, a, b string) (*domain.Friendship, error) {
	lo, hi := domain.NormalizePair(a, b)
	row := s.pool.QueryRow(ctx, `
		SELECT id, address_1, address_2, is_active, external_room_id, created_at
		FROM friendships
		WHERE LEAST(lower(address_1), lower(address_2)) = $1
		  AND GREATEST(lower(address_1), lower(address_2)) = $2`, lo, hi)

	var f domain.Friendship
	var roomID *string
	if err := row.Scan(&f.ID, &f.Address1, &f.Address2, &f.IsActive, &roomID, &f.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, friendkind.Wrap(friendkind.Unknown, "get friendship", err)
	}
	if roomID != nil {
		f.ExternalRoomID = *roomID
	}
	return &f, nil
}

func (s *Store) GetMutualFriends(ctx context.Context, u, v string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		WITH friends_of_u AS (
			SELECT CASE WHEN lower(address_1) = lower($1) THEN address_2 ELSE address_1 END AS other
			FROM friendships WHERE is_active AND (lower(address_1) = lower($1) OR lower(address_2) = lower($1))
		), friends_of_v AS (
			SELECT CASE WHEN lower(address_1) = lower($2) THEN address_2 ELSE address_1 END AS other
			FROM friendships WHERE is_active AND (lower(address_1) = lower($2) OR lower(address_2) = lower($2))
		)
		SELECT other FROM friends_of_u
		INTERSECT
		SELECT other FROM friends_of_v`, u, v)
	if err != nil {
		return nil, friendkind.Wrap(friendkind.Unknown, "get mutual friends", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, friendkind.Wrap(friendkind.Unknown, "scan mutual friend", err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func (s *Store) CreateFriendship(ctx context.Context, t store.Tx, a, b string, active bool, roomID string) (string, error) {
	id := uuid.NewString()
	_, err := unwrapTx(t).Exec(ctx, `
		INSERT INTO friendships (id, address_1, address_2, is_active, external_room_id)
		VALUES ($1, $2, $3, $4, $5)`, id, a, b, active, nullIfEmpty(roomID))
	if err != nil {
		return "", friendkind.Wrap(friendkind.Unknown, "create friendship", err)
	}
	return id, nil
}

func (s *Store) UpdateIsActive(ctx context.Context, t store.Tx, friendshipID string, active bool) error {
	_, err := unwrapTx(t).Exec(ctx, `UPDATE friendships SET is_active = $1 WHERE id = $2`, active, friendshipID)
	if err != nil {
		return friendkind.Wrap(friendkind.Unknown, "update is_active", err)
	}
	return nil
}

func (s *Store) AppendHistory(ctx context.Context, t store.Tx, friendshipID string, event domain.Event, actingUser string, metadata *domain.HistoryMetadata) error {
	var metaJSON []byte
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return friendkind.Wrap(friendkind.Unknown, "marshal history metadata", err)
		}
		metaJSON = b
	}
	_, err := unwrapTx(t).Exec(ctx, `
		INSERT INTO friendship_history (id, friendship_id, event, acting_user, "timestamp", metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), friendshipID, string(event), actingUser, time.Now().UTC(), metaJSON)
	if err != nil {
		return friendkind.Wrap(friendkind.Unknown, "append history", err)
	}
	return nil
}

func (s *Store) GetLastHistory(ctx context.Context, friendshipID string) (*domain.History, error) {
	if friendshipID == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, friendship_id, event, acting_user, "timestamp", metadata
		FROM friendship_history
		WHERE friendship_id = $1
		ORDER BY "timestamp" DESC
		LIMIT 1`, friendshipID)

	h, err := scanHistory(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, friendkind.Wrap(friendkind.Unknown, "get last history", err)
	}
	return h, nil
}

func (s *Store) GetPendingRequestEvents(ctx context.Context, user string) ([]domain.RequestEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (fh.friendship_id)
			fh.friendship_id, fh.event, fh.acting_user, f.address_1, f.address_2, fh."timestamp", fh.metadata
		FROM friendship_history fh
		JOIN friendships f ON f.id = fh.friendship_id
		WHERE (lower(f.address_1) = lower($1) OR lower(f.address_2) = lower($1))
		ORDER BY fh.friendship_id, fh."timestamp" DESC`, user)
	if err != nil {
		return nil, friendkind.Wrap(friendkind.Unknown, "get pending request events", err)
	}
	defer rows.Close()

	var out []domain.RequestEvent
	for rows.Next() {
		var friendshipID, event, actingUser, addr1, addr2 string
		var ts time.Time
		var metaJSON []byte
		if err := rows.Scan(&friendshipID, &event, &actingUser, &addr1, &addr2, &ts, &metaJSON); err != nil {
			return nil, friendkind.Wrap(friendkind.Unknown, "scan pending request event", err)
		}
		// Only the *latest* event being REQUEST makes the pair pending; the
		// DISTINCT ON above already picks the latest row per friendship, so
		// a non-REQUEST latest event must be filtered out here.
		if domain.Event(event) != domain.Request {
			continue
		}
		var meta domain.HistoryMetadata
		_ = json.Unmarshal(metaJSON, &meta)

		other := addr2
		if domain.EqualAddress(addr1, actingUser) && !domain.EqualAddress(addr1, user) {
			other = addr1
		} else if domain.EqualAddress(addr2, user) {
			other = addr1
		}
		out = append(out, domain.RequestEvent{
			FriendshipID: friendshipID,
			ActingUser:   actingUser,
			OtherUser:    other,
			CreatedAt:    ts,
			Message:      meta.Message,
		})
	}
	return out, rows.Err()
}

func (s *Store) GetRequestEventHistory(ctx context.Context, friendshipID string, from, to int) ([]domain.History, error) {
	limit := to - from
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, friendship_id, event, acting_user, "timestamp", metadata
		FROM friendship_history
		WHERE friendship_id = $1
		ORDER BY "timestamp" ASC
		OFFSET $2 LIMIT $3`, friendshipID, from, limit)
	if err != nil {
		return nil, friendkind.Wrap(friendkind.Unknown, "get request event history", err)
	}
	defer rows.Close()

	var out []domain.History
	for rows.Next() {
		h, err := scanHistoryRows(rows)
		if err != nil {
			return nil, friendkind.Wrap(friendkind.Unknown, "scan history", err)
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func scanHistory(row pgx.Row) (*domain.History, error) {
	var h domain.History
	var event string
	var metaJSON []byte
	if err := row.Scan(&h.ID, &h.FriendshipID, &event, &h.ActingUser, &h.Timestamp, &metaJSON); err != nil {
		return nil, err
	}
	h.Event = domain.Event(event)
	if len(metaJSON) > 0 {
		var meta domain.HistoryMetadata
		if err := json.Unmarshal(metaJSON, &meta); err == nil {
			h.Metadata = &meta
		} else {
			log.ZWarn(context.Background(), "corrupt history metadata", err, "historyID", h.ID)
		}
	}
	return &h, nil
}

func scanHistoryRows(rows pgx.Rows) (*domain.History, error) {
	var h domain.History
	var event string
	var metaJSON []byte
	if err := rows.Scan(&h.ID, &h.FriendshipID, &event, &h.ActingUser, &h.Timestamp, &metaJSON); err != nil {
		return nil, err
	}
	h.Event = domain.Event(event)
	if len(metaJSON) > 0 {
		var meta domain.HistoryMetadata
		if err := json.Unmarshal(metaJSON, &meta); err == nil {
			h.Metadata = &meta
		}
	}
	return &h, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
