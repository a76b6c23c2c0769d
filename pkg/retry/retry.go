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

// Package retry implements the bounded-attempts helper used by outbound
// calls to the chat backend (§4.4, §A.5). Identity provider calls do not go
// through it.
package retry

import (
	"context"

	"github.com/openimsdk/tools/log"
)

// Do calls fn up to attempts times, logging every failed attempt, and
// returns the error from the final attempt if all of them fail. attempts
// must be >= 1. It never sleeps between attempts: the chat backend calls
// this wraps are already rate-limited server-side, and the spec's 3-attempt
// policy (§4.4) is about tolerating transient failures, not backing off.
func Do(ctx context.Context, attempts int, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		log.ZWarn(ctx, "retry attempt failed", lastErr, "op", op, "attempt", i+1, "attempts", attempts)
	}
	return lastErr
}
