// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package session keeps user sessions in memory and their verification keys
// in the volatile area. A session can only be read while both halves agree,
// so losing the area invalidates every session.
package session

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/expiry"
	"github.com/carabiner-dev/tmpvault/internal/telemetry"
	"github.com/carabiner-dev/tmpvault/volatile"
)

const (
	// KeyPrefix is the area namespace holding verification keys.
	KeyPrefix = "session-keys/"

	idBytes  = 16
	keyBytes = 32
)

// Session is the caller visible view of a session. It never carries the
// verification key.
type Session struct {
	ID        string
	UserID    string
	Payload   []byte
	CreatedAt time.Time
}

type record struct {
	Session
	verificationKey []byte
}

// Registry owns the in-memory session map and the verification keys it
// writes to the area.
type Registry struct {
	area    volatile.Area
	clock   expiry.Clock
	metrics *telemetry.Metrics

	mu       sync.RWMutex
	sessions map[string]*record
}

// NewRegistry creates an empty registry over area.
func NewRegistry(area volatile.Area, clock expiry.Clock, metrics *telemetry.Metrics) *Registry {
	if clock == nil {
		clock = expiry.SystemClock()
	}
	return &Registry{
		area:     area,
		clock:    clock,
		metrics:  metrics,
		sessions: map[string]*record{},
	}
}

func keyPath(id string) string {
	return KeyPrefix + id
}

// Create registers a session for userID and returns its id. The
// verification key is written to the area before the session becomes
// visible, a failed write leaves nothing behind.
func (r *Registry) Create(ctx context.Context, userID string, payload []byte) (string, error) {
	if userID == "" {
		return "", common.Errorf(common.ErrInvalidArgument, "user id is required")
	}

	id, err := common.GenerateToken(idBytes)
	if err != nil {
		return "", common.Errorf(common.ErrStorage, "generating session id: %v", err)
	}

	key, err := common.GenerateToken(keyBytes)
	if err != nil {
		return "", common.Errorf(common.ErrStorage, "generating verification key: %v", err)
	}

	if err := r.area.Put(ctx, keyPath(id), []byte(key)); err != nil {
		// The write may have been partial
		if derr := r.area.Delete(ctx, keyPath(id)); derr != nil {
			clog.FromContext(ctx).Debugf("cleaning up key of failed session %s: %v", id, derr)
		}
		return "", common.Errorf(common.ErrStorage, "writing verification key: %v", err)
	}

	rec := &record{
		Session: Session{
			ID:        id,
			UserID:    userID,
			Payload:   bytes.Clone(payload),
			CreatedAt: r.clock.Now(),
		},
		verificationKey: []byte(key),
	}

	r.mu.Lock()
	r.sessions[id] = rec
	r.mu.Unlock()

	r.metrics.SessionCreated()
	clog.FromContext(ctx).Debugf("created session %s for user %s", id, userID)
	return id, nil
}

// Get returns the session with id after checking its verification key
// against the one held in the area.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	rec, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, common.Errorf(common.ErrNotFound, "session %q", id)
	}

	stored, err := r.area.Get(ctx, keyPath(id))
	switch {
	case errors.Is(err, volatile.ErrNotFound) && !r.holds(id, rec):
		// Deleted while the key was being read
		return nil, common.Errorf(common.ErrNotFound, "session %q", id)
	case errors.Is(err, volatile.ErrNotFound):
		r.metrics.SessionVerified(telemetry.VerificationBad)
		return nil, common.Errorf(common.ErrUnauthorized, "verification key for session %q is missing", id)
	case err != nil:
		return nil, common.Errorf(common.ErrStorage, "reading verification key: %v", err)
	}

	if subtle.ConstantTimeCompare(stored, rec.verificationKey) != 1 {
		r.metrics.SessionVerified(telemetry.VerificationBad)
		return nil, common.Errorf(common.ErrUnauthorized, "verification key mismatch for session %q", id)
	}

	r.metrics.SessionVerified(telemetry.VerificationOK)
	s := rec.Session
	s.Payload = bytes.Clone(rec.Payload)
	return &s, nil
}

// holds reports whether rec is still the record registered under id.
func (r *Registry) holds(id string, rec *record) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id] == rec
}

// Delete removes a session together with its verification key.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return common.Errorf(common.ErrNotFound, "session %q", id)
	}

	if err := r.area.Delete(ctx, keyPath(id)); err != nil {
		return common.Errorf(common.ErrStorage, "deleting verification key: %v", err)
	}

	delete(r.sessions, id)
	r.metrics.SessionDeleted()
	clog.FromContext(ctx).Debugf("deleted session %s", id)
	return nil
}

// Len returns the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the ids of all sessions, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.sessions))
}

// Close drops every session and removes their keys from the area. Keys
// that fail to delete are reported but do not stop the sweep.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, rec := range r.sessions {
		if err := r.area.Delete(ctx, keyPath(id)); err != nil {
			errs = append(errs, common.Errorf(common.ErrStorage, "deleting key of session %s: %v", id, err))
		}
		common.ZeroBytes(rec.verificationKey)
		delete(r.sessions, id)
		r.metrics.SessionDeleted()
	}
	return errors.Join(errs...)
}
