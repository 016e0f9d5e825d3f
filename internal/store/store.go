// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store implements the proxy's append-only exchange log (spec
// component C6): it owns the ordered sequence of Exchanges and the ingress
// channel that request-handler goroutines feed Messages through.
package store

import (
	"sync"

	"github.com/aleutianlabs/jrpcproxy/internal/rpc"
)

// ingressBuffer sizes the Message channel generously so producer sends never
// block the request path under normal load; the contract only requires sends
// to be non-blocking and lossy-tolerant, not truly unbounded.
const ingressBuffer = 4096

// drainBudget bounds how many messages Tick drains per call so a burst of
// traffic cannot starve the UI loop indefinitely; any remainder drains on the
// next tick.
const drainBudget = 512

// Store holds the ordered exchange log. All exported methods except Emit are
// intended to be called from a single consumer goroutine (the controller's
// UI loop); Emit is safe to call from any number of producer goroutines.
type Store struct {
	ingress chan rpc.Message

	mu        sync.RWMutex
	exchanges []rpc.Exchange

	onDropped func(rpc.Message)
}

// New returns an empty Store.
func New() *Store {
	return &Store{ingress: make(chan rpc.Message, ingressBuffer)}
}

// OnDropped registers a callback invoked whenever Emit cannot enqueue a
// Message because the ingress channel is full. The default is a no-op;
// callers typically wire this to a logger.
func (s *Store) OnDropped(fn func(rpc.Message)) {
	s.onDropped = fn
}

// Emit enqueues a Message for the store to absorb on its next Tick. The send
// is non-blocking: per spec.md §5, a dropped send is tolerated, never fatal
// to the request path.
func (s *Store) Emit(m rpc.Message) {
	select {
	case s.ingress <- m:
	default:
		if s.onDropped != nil {
			s.onDropped(m)
		}
	}
}

// Tick drains up to drainBudget buffered Messages, applying each via add.
// Safe to call only from the single consumer goroutine.
func (s *Store) Tick() {
	for i := 0; i < drainBudget; i++ {
		select {
		case m := <-s.ingress:
			s.add(m)
		default:
			return
		}
	}
}

// add applies one Message to the exchange log per the pairing invariant
// (spec.md §3/§4.5): a Request always starts a new Exchange; a Response
// pairs LIFO with the most recent unfulfilled Exchange sharing its id, or
// else starts a response-only Exchange. Sanitization runs first.
func (s *Store) add(m rpc.Message) {
	rpc.SanitizeMessage(&m)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.Direction {
	case rpc.DirectionRequest:
		s.exchanges = append(s.exchanges, rpc.Exchange{
			ID:        m.ID,
			Method:    m.Method,
			Request:   &m,
			Timestamp: m.Timestamp,
			Transport: m.Transport,
		})
	case rpc.DirectionResponse:
		for i := len(s.exchanges) - 1; i >= 0; i-- {
			e := &s.exchanges[i]
			if e.Response == nil && rpc.IDEqual(e.ID, m.ID) {
				e.Response = &m
				return
			}
		}
		s.exchanges = append(s.exchanges, rpc.Exchange{
			ID:        m.ID,
			Response:  &m,
			Timestamp: m.Timestamp,
			Transport: m.Transport,
		})
	}
}

// Exchanges returns a snapshot copy of the current exchange log, safe to
// range over while the store keeps accepting new messages.
func (s *Store) Exchanges() []rpc.Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rpc.Exchange, len(s.exchanges))
	copy(out, s.exchanges)
	return out
}

// Len returns the current number of exchanges.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exchanges)
}
