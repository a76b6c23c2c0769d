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

import "github.com/decentraland/friendship-interaction-engine/pkg/friendkind"

// WireError is the tagged-union error shape every response carries
// alongside its successful variant (§6): one of
// UnauthorizedError|InternalServerError|BadRequestError|ForbiddenError|
// TooManyRequestsError, each with a message string.
type WireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func toWireError(err error) *WireError {
	if err == nil {
		return nil
	}
	kind := "InternalServerError"
	switch friendkind.As(err) {
	case friendkind.Unauthorized:
		kind = "UnauthorizedError"
	case friendkind.BadRequest:
		kind = "BadRequestError"
	case friendkind.Forbidden:
		kind = "ForbiddenError"
	case friendkind.TooManyRequests:
		kind = "TooManyRequestsError"
	}
	return &WireError{Kind: kind, Message: err.Error()}
}

// LegacyErrorEnvelope is the §6 "error envelope for REST-style legacy
// callers": {code, error, message}. No legacy routes are implemented (§1);
// this type exists only so a future thin REST shim has something to return.
type LegacyErrorEnvelope struct {
	Code    uint16 `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
