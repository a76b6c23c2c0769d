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

// Package registry implements C6: the per-connection async sink registry
// backing SubscribeFriendshipEventsUpdates.
//
// Grounded on internal/msggateway/subscription.go's Subscription type
// (sync.RWMutex guarding a map[userID]map[connKey]*client), the one place in
// the teacher codebase that already supports multiple live sinks per user —
// the original Rust source's single-entry-per-user HashMap does not.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/openimsdk/tools/log"
)

// Update is what gets pushed into a subscriber's sink. Equality for
// dedup purposes (§8 invariant 4) is on (From, To, Event, CreatedAt).
type Update struct {
	From      string
	To        string
	Event     string
	Message   string
	CreatedAt time.Time
}

// Sink is the receive end a transport reads from to stream updates to a
// peer (§9 "generators/streams ... bounded async channels").
type Sink <-chan Update

type subscriber struct {
	ch chan Update
}

// Registry is C6.
type Registry struct {
	mu          sync.RWMutex
	byUser      map[string]map[string]*subscriber // userID -> transportID -> subscriber
	transportOf map[string]string                 // transportID -> userID
	queueSize   int
	deliverWait time.Duration
}

func New(queueSize int, deliverWait time.Duration) *Registry {
	if queueSize <= 0 {
		queueSize = 32
	}
	if deliverWait <= 0 {
		deliverWait = 2 * time.Second
	}
	return &Registry{
		byUser:      make(map[string]map[string]*subscriber),
		transportOf: make(map[string]string),
		queueSize:   queueSize,
		deliverWait: deliverWait,
	}
}

// Register implements §4.6 register(user_id, transport_id) -> sink<Update>.
func (r *Registry) Register(userID, transportID string) Sink {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub := &subscriber{ch: make(chan Update, r.queueSize)}
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]*subscriber)
	}
	r.byUser[userID][transportID] = sub
	r.transportOf[transportID] = userID
	return sub.ch
}

// Deliver implements §4.6 deliver(user_id, update): fans out to every sink
// registered for userID, dropping (with a logged warning) any sink that is
// still full after deliverWait.
func (r *Registry) Deliver(ctx context.Context, userID string, update Update) {
	r.mu.RLock()
	subs := make([]*subscriber, 0, len(r.byUser[userID]))
	for _, s := range r.byUser[userID] {
		subs = append(subs, s)
	}
	r.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- update:
		default:
			timer := time.NewTimer(r.deliverWait)
			select {
			case s.ch <- update:
				timer.Stop()
			case <-timer.C:
				log.ZWarn(ctx, "dropping update: subscriber sink full", nil, "userID", userID)
			case <-ctx.Done():
				timer.Stop()
			}
		}
	}
}

// ActiveSubscribers reports the total number of live sinks across every
// user, for periodic gauge reporting by the service's maintenance job.
func (r *Registry) ActiveSubscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, subs := range r.byUser {
		n += len(subs)
	}
	return n
}

// OnTransportClosed implements §4.6 on_transport_closed(transport_id).
func (r *Registry) OnTransportClosed(transportID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.transportOf[transportID]
	if !ok {
		return
	}
	delete(r.transportOf, transportID)
	if subs := r.byUser[userID]; subs != nil {
		if sub, ok := subs[transportID]; ok {
			close(sub.ch)
			delete(subs, transportID)
		}
		if len(subs) == 0 {
			delete(r.byUser, userID)
		}
	}
}
