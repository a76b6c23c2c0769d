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

// Package eventbus implements C7: a single process-wide Kafka producer
// publishing to FRIENDSHIP_EVENTS_UPDATES, and a consumer group loop per
// instance that re-delivers decoded events into the Subscription Registry.
//
// Grounded on internal/push/push_handler.go's sarama.ConsumerGroup
// consumption loop (ConsumeClaim over partitions, ack-after-handle) and on
// the teacher's producer usage elsewhere in internal/push for publishing
// committed events onto a Kafka topic.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/openimsdk/tools/log"

	"github.com/decentraland/friendship-interaction-engine/internal/domain"
	"github.com/decentraland/friendship-interaction-engine/internal/registry"
	"github.com/decentraland/friendship-interaction-engine/internal/wireproto"
)

const Topic = "FRIENDSHIP_EVENTS_UPDATES"

// Publisher is C7's producer half. Publish errors are logged, not
// surfaced (§7): the caller treats publishing as fire-and-forget.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(addrs []string, topic string) (*Publisher, error) {
	if topic == "" {
		topic = Topic
	}
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	producer, err := sarama.NewSyncProducer(addrs, cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{producer: producer, topic: topic}, nil
}

func (p *Publisher) Publish(ctx context.Context, e wireproto.Event) {
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.To),
		Value: sarama.ByteEncoder(wireproto.Marshal(e)),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		log.ZError(ctx, "publish friendship event failed", err, "to", e.To, "event", e.Event)
	}
}

// PublishFriendshipEvent adapts Publish to engine.Publisher's domain-typed
// signature, so the engine's C7 dependency needs no import of domain.Event's
// wire representation.
func (p *Publisher) PublishFriendshipEvent(ctx context.Context, from, to string, event domain.Event, message string) {
	p.Publish(ctx, wireproto.Event{
		From:      from,
		To:        to,
		Event:     string(event),
		Message:   message,
		CreatedAt: time.Now(),
	})
}

func (p *Publisher) Close() error { return p.producer.Close() }

// Subscriber is C7's consumer half: decodes every message and calls
// registry.Deliver, the "re-delivers them to C6" half of §4.7.
type Subscriber struct {
	group    sarama.ConsumerGroup
	topic    string
	registry *registry.Registry
}

func NewSubscriber(addrs []string, groupID, topic string, reg *registry.Registry) (*Subscriber, error) {
	if topic == "" {
		topic = Topic
	}
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true
	group, err := sarama.NewConsumerGroup(addrs, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Subscriber{group: group, topic: topic, registry: reg}, nil
}

// Run drives the consumer group loop until ctx is cancelled, mirroring
// push_handler.go's ConsumerHandler.Start loop.
func (s *Subscriber) Run(ctx context.Context) error {
	handler := &consumerHandler{registry: s.registry}
	for {
		if err := s.group.Consume(ctx, []string{s.topic}, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.ZError(ctx, "friendship events consumer group error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Subscriber) Close() error { return s.group.Close() }

type consumerHandler struct {
	registry *registry.Registry
	once     sync.Once
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		e, err := wireproto.Unmarshal(msg.Value)
		if err != nil {
			log.ZError(sess.Context(), "discarding malformed friendship event", err)
			sess.MarkMessage(msg, "")
			continue
		}
		h.registry.Deliver(sess.Context(), e.To, registry.Update{
			From:      e.From,
			To:        e.To,
			Event:     e.Event,
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
		sess.MarkMessage(msg, "")
	}
	return nil
}
