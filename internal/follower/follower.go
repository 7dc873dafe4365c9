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

// Package follower consumes the upstream chain follower's ordered event
// stream. The follower speaks newline-delimited JSON over a unix socket or
// TCP connection; the first line we send is the requested intersect point.
package follower

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/blinklabs-io/wtp/internal/logging"
)

const (
	// Blocks with full transaction details can get large
	maxEventSize = 32 * 1024 * 1024

	eventChanSize = 64
)

type Follower struct {
	endpoint      string
	intersect     *IntersectPoint
	conn          net.Conn
	eventChan     chan Event
	errorChan     chan error
	startupLogged bool
}

// IntersectPoint is the chain point to resume the stream from
type IntersectPoint struct {
	Slot uint64 `json:"slot"`
	Hash string `json:"hash"`
}

type FollowerOptionFunc func(*Follower)

// WithIntersectPoint specifies the point the follower should resume from
func WithIntersectPoint(slot uint64, hash string) FollowerOptionFunc {
	return func(f *Follower) {
		f.intersect = &IntersectPoint{Slot: slot, Hash: hash}
	}
}

func New(endpoint string, opts ...FollowerOptionFunc) *Follower {
	f := &Follower{
		endpoint:  endpoint,
		eventChan: make(chan Event, eventChanSize),
		errorChan: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start connects to the follower endpoint and begins streaming events.
// Transport failures after startup are delivered on ErrorChan.
func (f *Follower) Start() error {
	logger := logging.GetLogger()
	network := "unix"
	if strings.Contains(f.endpoint, ":") {
		network = "tcp"
	}
	conn, err := net.Dial(network, f.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to follower: %w", err)
	}
	f.conn = conn
	if f.intersect != nil {
		req := struct {
			Intersect *IntersectPoint `json:"intersect"`
		}{Intersect: f.intersect}
		if err := json.NewEncoder(conn).Encode(&req); err != nil {
			conn.Close()
			return fmt.Errorf("failed to send intersect point: %w", err)
		}
		logger.Info(
			"requested intersect point",
			"slot", f.intersect.Slot,
			"hash", f.intersect.Hash,
		)
	}
	go f.readLoop()
	return nil
}

// Stop closes the connection, which terminates the read loop
func (f *Follower) Stop() {
	if f.conn != nil {
		f.conn.Close()
	}
}

// EventChan returns the ordered event stream
func (f *Follower) EventChan() <-chan Event {
	return f.eventChan
}

// ErrorChan delivers the transport error that ended the stream
func (f *Follower) ErrorChan() <-chan error {
	return f.errorChan
}

func (f *Follower) readLoop() {
	logger := logging.GetLogger()
	defer close(f.eventChan)
	scanner := bufio.NewScanner(f.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(line, &evt); err != nil {
			// A single undecodable event is not fatal; the stream framing
			// is still intact
			logger.Warn("failed to decode follower event", "error", err)
			continue
		}
		if !f.startupLogged {
			logger.Info("follower stream established", "endpoint", f.endpoint)
			f.startupLogged = true
		}
		f.eventChan <- evt
	}
	if err := scanner.Err(); err != nil {
		f.errorChan <- fmt.Errorf("follower stream failed: %w", err)
		return
	}
	f.errorChan <- fmt.Errorf("follower stream closed")
}
