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

// Exercising Store's SQL methods needs a live Postgres, unavailable here;
// these tests cover the pure helpers and the schema constant instead. The
// interface contract itself (store.Store) is exercised end to end against
// an in-memory fake in internal/engine's and internal/rpcfacade's tests.
package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNullIfEmpty(t *testing.T) {
	require.Nil(t, nullIfEmpty(""))
	require.Equal(t, "x", nullIfEmpty("x"))
}

func TestSchema_DeclaresExpectedTables(t *testing.T) {
	require.Contains(t, Schema, "CREATE TABLE")
	require.Contains(t, Schema, "friendships")
	require.Contains(t, Schema, "friendship_history")
}

func TestSchema_FriendshipsHasUniquePairConstraint(t *testing.T) {
	lower := strings.ToLower(Schema)
	require.Contains(t, lower, "unique")
}
