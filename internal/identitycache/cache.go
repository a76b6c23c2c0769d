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

// Package identitycache implements C1: resolving a bearer token to a stable
// user id, write-through cached in front of an external identity provider.
//
// Grounded on the teacher's token-state lookups in
// internal/rpc/auth/auth.go (Redis-backed, TTL'd token state) and on
// pkg/rpccache/friend.go's rockscache.Client read-through pattern; the
// never-store-plaintext requirement (§3 TokenBinding) departs from the
// original Rust users_cache.rs, which keyed Redis by the raw token.
package identitycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dtm-labs/rockscache"
	"github.com/openimsdk/tools/log"
	"github.com/redis/go-redis/v9"

	"github.com/decentraland/friendship-interaction-engine/pkg/friendkind"
)

// Provider is the external identity provider's "who am I" call (§4.1). It is
// the only outbound network dependency of this package.
type Provider interface {
	// WhoAmI resolves the raw bearer token to the provider's external id
	// (in "@local:domain" form). A 401 from the provider is returned as an
	// *Unauthorized error, which Resolve maps to friendkind.Unauthorized;
	// any other error is mapped to friendkind.Unknown.
	WhoAmI(ctx context.Context, token string) (externalID string, err error)
}

// Binding is the cached token->identity mapping (§3 TokenBinding).
type Binding struct {
	SocialID   string `json:"social_id"`
	ExternalID string `json:"external_id"`
}

// Cache is C1. It never stores a raw token: the cache key and the
// rockscache "distributed lock" key are both the SHA-256 hash of the token.
type Cache struct {
	provider Provider
	rc       *rockscache.Client
	ttl      time.Duration
}

func New(rdb redis.UniversalClient, provider Provider, ttl time.Duration) *Cache {
	return &Cache{
		provider: provider,
		rc:       rockscache.NewClient(rdb, rockscache.NewDefaultOptions()),
		ttl:      ttl,
	}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func cacheKey(tokenHash string) string {
	return "friendship:identity:" + tokenHash
}

// Resolve implements §4.1 Resolve(token) -> UserId | Unauthorized.
func (c *Cache) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", friendkind.New(friendkind.Unauthorized, "missing token")
	}
	if exp, ok := InspectExpiry(token); ok && !time.Now().Before(exp) {
		return "", friendkind.New(friendkind.Unauthorized, "token expired")
	}
	th := hashToken(token)

	raw, err := c.rc.Fetch2(ctx, cacheKey(th), c.ttl, func() (string, error) {
		externalID, err := c.provider.WhoAmI(ctx, token)
		if err != nil {
			log.ZWarn(ctx, "identity provider whoami failed", err)
			return "", err
		}
		b := Binding{SocialID: AsSocialID(externalID), ExternalID: externalID}
		out, merr := json.Marshal(b)
		if merr != nil {
			return "", merr
		}
		return string(out), nil
	})
	if err != nil {
		return "", classifyProviderError(err)
	}
	var b Binding
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return "", friendkind.Wrap(friendkind.Unknown, "corrupt identity cache entry", err)
	}
	return b.SocialID, nil
}

// Bind seeds the cache ahead of the first Resolve call (used at login).
func (c *Cache) Bind(ctx context.Context, token, socialID, externalID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	th := hashToken(token)
	b := Binding{SocialID: socialID, ExternalID: externalID}
	out, err := json.Marshal(b)
	if err != nil {
		return friendkind.Wrap(friendkind.Unknown, "marshal binding", err)
	}
	return c.rc.RawSet(ctx, cacheKey(th), string(out), ttl)
}

// AsSocialID normalizes the provider's "@local:domain" external id form
// into the canonical "local" social id, per §4.1.
func AsSocialID(externalID string) string {
	s := strings.TrimPrefix(externalID, "@")
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}

// AsExternal renders a social id back into the provider's own
// "@local:domain" format for outbound calls that must address it that way.
func AsExternal(socialID, domain string) string {
	return "@" + socialID + ":" + domain
}

// Unauthorized lets a Provider communicate a 401 without this package
// depending on an HTTP status type.
type Unauthorized struct{ Err error }

func (u *Unauthorized) Error() string { return "identity provider: unauthorized: " + u.Err.Error() }
func (u *Unauthorized) Unwrap() error { return u.Err }

func classifyProviderError(err error) error {
	var unauth *Unauthorized
	if errors.As(err, &unauth) {
		return friendkind.Wrap(friendkind.Unauthorized, "token rejected by identity provider", err)
	}
	return friendkind.Wrap(friendkind.Unknown, "identity provider call failed", err)
}
