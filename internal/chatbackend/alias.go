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
	"net/url"
	"sort"
	"strings"
)

// buildRoomAlias computes the canonical room alias for a pair, per §4.4:
// "#" + sorted(lower(a), lower(b)).join("+") + ":decentraland." + domain,
// URL-encoded. Grounded on the original ws/service/utils.rs
// build_room_alias_name and components/synapse.rs full_encoded_alias.
func buildRoomAlias(addrs []string, chatBaseURL string) string {
	lowered := make([]string, len(addrs))
	for i, a := range addrs {
		lowered[i] = strings.ToLower(a)
	}
	sort.Strings(lowered)
	local := "#" + strings.Join(lowered, "+") + ":decentraland." + extractDomain(chatBaseURL)
	return url.QueryEscape(local)
}

// extractDomain mirrors components/synapse.rs extract_domain: only "zone"
// and "org" TLDs are recognized; anything else defaults to "zone".
func extractDomain(baseURL string) string {
	u, err := url.Parse(baseURL)
	host := baseURL
	if err == nil && u.Host != "" {
		host = u.Host
	}
	if strings.HasSuffix(host, ".org") {
		return "org"
	}
	return "zone"
}
