// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package session binds LoRaWAN join activity to the data uplinks
// that follow it, so that packets sharing a radio session can be
// correlated downstream. The binding is opportunistic and best-effort:
// nothing downstream depends on a session id being present.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Context is what the tracker knows about one bound session.
type Context struct {
	SessionID string
	DevEUI    string
	JoinEUI   string
	LastSeen  time.Time
}

type pendingJoin struct {
	SessionID string
	DevEUI    string
	JoinEUI   string
	Operator  string
	CreatedAt time.Time
}

// Tracker holds the in-memory DevAddr -> Context map. All access is
// single-writer, single-reader from the pipeline worker; the mutex
// exists so Sweep and Len can run from other goroutines (the scheduler
// and the gauge reporter).
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*Context
	pending  map[string]*pendingJoin // keyed by DevEUI

	inactivityWindow time.Duration
}

// New returns a Tracker that evicts entries idle for longer than
// inactivityWindow.
func New(inactivityWindow time.Duration) *Tracker {
	return &Tracker{
		sessions:         make(map[string]*Context),
		pending:          make(map[string]*pendingJoin),
		inactivityWindow: inactivityWindow,
	}
}

// OnJoinRequest records a pending join and returns its freshly
// generated session id.
func (t *Tracker) OnJoinRequest(devEUI, joinEUI, operator string, now time.Time) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessionID := uuid.NewString()
	t.pending[devEUI] = &pendingJoin{
		SessionID: sessionID,
		DevEUI:    devEUI,
		JoinEUI:   joinEUI,
		Operator:  operator,
		CreatedAt: now,
	}
	return sessionID
}

// OnDataUplink enriches a data uplink with session/DevEUI information.
//
// If devAddr is already bound, its session is stamped and returned.
// Otherwise the tracker searches pending joins for ones whose resolved
// operator matches; exactly one candidate binds the session, zero or
// more than one leaves the uplink unenriched. Guessing among several
// pending joins would mislabel devices, so ambiguity never binds.
func (t *Tracker) OnDataUplink(devAddr, operator string, now time.Time) (sessionID, devEUI string, bound bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ctx, ok := t.sessions[devAddr]; ok {
		ctx.LastSeen = now
		return ctx.SessionID, ctx.DevEUI, true
	}

	var candidate *pendingJoin
	ambiguous := false
	for _, p := range t.pending {
		if p.Operator != operator {
			continue
		}
		if candidate == nil {
			candidate = p
		} else {
			ambiguous = true
		}
	}

	if candidate == nil || ambiguous {
		return "", "", false
	}

	delete(t.pending, candidate.DevEUI)
	t.sessions[devAddr] = &Context{
		SessionID: candidate.SessionID,
		DevEUI:    candidate.DevEUI,
		JoinEUI:   candidate.JoinEUI,
		LastSeen:  now,
	}
	return candidate.SessionID, candidate.DevEUI, true
}

// OnDownlink stamps an already-bound session onto a downlink. Unlike
// OnDataUplink it never promotes a pending join: only uplinks prove
// which device owns a DevAddr.
func (t *Tracker) OnDownlink(devAddr string, now time.Time) (sessionID, devEUI string, bound bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, ok := t.sessions[devAddr]
	if !ok {
		return "", "", false
	}
	ctx.LastSeen = now
	return ctx.SessionID, ctx.DevEUI, true
}

// Sweep evicts sessions and pending joins idle for longer than the
// configured inactivity window, returning the number of entries
// removed.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for devAddr, ctx := range t.sessions {
		if now.Sub(ctx.LastSeen) > t.inactivityWindow {
			delete(t.sessions, devAddr)
			removed++
		}
	}
	for devEUI, p := range t.pending {
		if now.Sub(p.CreatedAt) > t.inactivityWindow {
			delete(t.pending, devEUI)
			removed++
		}
	}
	return removed
}

// Len reports the number of bound sessions and pending joins currently
// tracked, for tests and instrumentation.
func (t *Tracker) Len() (sessions int, pending int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions), len(t.pending)
}
