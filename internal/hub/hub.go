// Copyright 2023 Blink Labs Software
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

// Package hub fans live pipeline updates out to WebSocket subscribers. A
// subscriber that stops draining loses its oldest frames; publishing never
// blocks and never fails.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/blinklabs-io/wtp/internal/logging"
)

// Per-subscriber frame buffer
const subscriberCapacity = 16

// Message operations
const (
	OperationMeanValue = "MeanValue"
	OperationSwap      = "Swap"
)

// Message is a single broadcast frame
type Message struct {
	Operation string `json:"operation"`
	Data      any    `json:"data"`
}

type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
}

// Subscriber receives serialized frames from the hub in FIFO order
type Subscriber struct {
	hub *Hub
	ch  chan []byte
}

func New() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		hub: h,
		ch:  make(chan []byte, subscriberCapacity),
	}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Publish serializes the message once and enqueues it for every subscriber.
// A full subscriber drops its oldest frame to make room.
func (h *Hub) Publish(msg Message) {
	frame, err := json.Marshal(&msg)
	if err != nil {
		// Nothing the caller could do about it
		logging.GetLogger().Error(
			"failed to serialize broadcast message",
			"error", err,
		)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		for {
			select {
			case sub.ch <- frame:
			default:
				// Drop the oldest frame and retry. Only Publish sends on the
				// channel, under the hub lock, so once a frame is dropped
				// there is room and this loop terminates.
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// C returns the subscriber's frame channel
func (s *Subscriber) C() <-chan []byte {
	return s.ch
}

// Close removes the subscriber from the hub
func (s *Subscriber) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subscribers, s)
	s.hub.mu.Unlock()
}
