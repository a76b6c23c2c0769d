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

// Schema is the persistent state layout of §6, split across the four
// migrations the original Rust source carried in src/migrator/ (friendships,
// friendship_history, friendship_history_events, user_features). user_features
// is out of scope for the core (§6) and kept only so the migration set is
// complete; no code in this repository reads or writes it.
const Schema = `
CREATE TABLE IF NOT EXISTS friendships (
	id              uuid PRIMARY KEY,
	address_1       text NOT NULL,
	address_2       text NOT NULL,
	is_active       boolean NOT NULL DEFAULT false,
	external_room_id text,
	created_at      timestamptz NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS friendships_pair_idx
	ON friendships (
		LEAST(lower(address_1), lower(address_2)),
		GREATEST(lower(address_1), lower(address_2))
	);

CREATE TABLE IF NOT EXISTS friendship_history (
	id            uuid PRIMARY KEY,
	friendship_id uuid NOT NULL REFERENCES friendships(id),
	event         text NOT NULL,
	acting_user   text NOT NULL,
	"timestamp"   timestamptz NOT NULL,
	metadata      jsonb
);

CREATE INDEX IF NOT EXISTS friendship_history_friendship_id_idx
	ON friendship_history (friendship_id, "timestamp" DESC);

CREATE TABLE IF NOT EXISTS user_features (
	"user" text NOT NULL,
	name   text NOT NULL,
	value  text,
	PRIMARY KEY ("user", name)
);
`
