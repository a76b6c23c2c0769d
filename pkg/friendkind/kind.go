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

// Package friendkind defines the domain-level error taxonomy shared by every
// component of the friendship interaction engine. Kind gives every error a
// wire-mappable classification (§7); the underlying chain is built with
// github.com/openimsdk/tools/errs so that Unwrap()/errors.Is still reach the
// original cause the way the teacher's servererrs package does, instead of
// inventing a parallel wrapping convention on top of errs.
package friendkind

import (
	"errors"
	"fmt"

	"github.com/openimsdk/tools/errs"
)

// Kind is one of the six domain error kinds. It is independent of wire form;
// the RPC facade is the only place that knows how to render a Kind onto the
// wire.
type Kind int

const (
	Unknown Kind = iota
	Unauthorized
	Forbidden
	BadRequest
	NotFound
	TooManyRequests
)

func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "Unauthorized"
	case Forbidden:
		return "Forbidden"
	case BadRequest:
		return "BadRequest"
	case NotFound:
		return "NotFound"
	case TooManyRequests:
		return "TooManyRequests"
	default:
		return "Unknown"
	}
}

// Error is a domain error carrying a Kind and a human-readable message. Every
// procedure in the RPC facade returns exactly one Error variant per §7.
type Error struct {
	Kind Kind
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// New builds a fresh domain error, using errs.New/errs.ErrArgs the way
// servererrs builds its own sentinels, so the underlying chain still
// round-trips through errs' code-aware Error() rendering.
func New(kind Kind, msg string) *Error {
	var base error
	if kind == BadRequest {
		base = errs.ErrArgs.WrapMsg(msg)
	} else {
		base = errs.New(msg).Wrap()
	}
	return &Error{Kind: kind, Msg: msg, err: base}
}

// Wrap attaches a Kind to an underlying error via errs.WrapMsg, preserving it
// for errors.Is/As/Unwrap chains the way the teacher's rpc layer wraps
// errors at component boundaries.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, err: errs.WrapMsg(err, msg)}
}

// As extracts the Kind of err, defaulting to Unknown when err is not (or does
// not wrap) a *Error.
func As(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func IsKind(err error, kind Kind) bool {
	return As(err) == kind
}
