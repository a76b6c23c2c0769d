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

import "github.com/decentraland/friendship-interaction-engine/pkg/friendkind"

// errcodeResponse is the chat backend's (Matrix-style) JSON error envelope.
type errcodeResponse struct {
	Errcode string `json:"errcode"`
	Error   string `json:"error"`
}

// mapErrcode implements §4.4's exact error-code table, grounded on
// components/synapse.rs parse_and_return_error.
func mapErrcode(resp errcodeResponse) error {
	msg := resp.Error
	if msg == "" {
		msg = resp.Errcode
	}
	switch resp.Errcode {
	case "M_FORBIDDEN":
		return friendkind.New(friendkind.Forbidden, msg)
	case "M_UNKNOWN_TOKEN", "M_MISSING_TOKEN":
		return friendkind.New(friendkind.Unauthorized, msg)
	case "M_LIMIT_EXCEEDED":
		return friendkind.New(friendkind.TooManyRequests, msg)
	default:
		return friendkind.New(friendkind.Unknown, msg)
	}
}
