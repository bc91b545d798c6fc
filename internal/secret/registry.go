// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package secret stores encrypted secrets in the volatile area and removes
// them when their time to live runs out. The area is the only source of
// truth, the registry keeps no index of its own.
package secret

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/envelope"
	"github.com/carabiner-dev/tmpvault/internal/expiry"
	"github.com/carabiner-dev/tmpvault/internal/telemetry"
	"github.com/carabiner-dev/tmpvault/options"
	"github.com/carabiner-dev/tmpvault/volatile"
)

const (
	// KeyPrefix is the area namespace holding secret records.
	KeyPrefix = "secrets/"

	// DefaultTTL applies when a secret is stored without a ttl.
	DefaultTTL = 300 * time.Second
)

// Limits bound what the registry accepts. Zero values disable a limit.
type Limits struct {
	DefaultTTL    time.Duration
	MaxSecretSize int64
	MaxSecrets    int
}

// Registry creates, lists and expires secrets.
type Registry struct {
	area      volatile.Area
	sealer    *envelope.Sealer
	scheduler *expiry.Scheduler
	clock     expiry.Clock
	metrics   *telemetry.Metrics
	limits    Limits
}

// NewRegistry wires a registry. The scheduler must read time from the same
// clock for timers and lazy expiry to agree.
func NewRegistry(
	area volatile.Area, sealer *envelope.Sealer, scheduler *expiry.Scheduler,
	clock expiry.Clock, metrics *telemetry.Metrics, limits Limits,
) *Registry {
	if clock == nil {
		clock = expiry.SystemClock()
	}
	if limits.DefaultTTL <= 0 {
		limits.DefaultTTL = DefaultTTL
	}
	return &Registry{
		area:      area,
		sealer:    sealer,
		scheduler: scheduler,
		clock:     clock,
		metrics:   metrics,
		limits:    limits,
	}
}

func keyPath(id string) string {
	return KeyPrefix + id
}

// validID rejects ids that could not have been issued by Store.
func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.Errorf(common.ErrNotFound, "secret %q", id)
	}
	return nil
}

// Store encrypts value and writes it under a new id. A ttl of zero selects
// the default, negative values and values above options.MaxTTLSeconds are
// rejected.
func (r *Registry) Store(ctx context.Context, name string, value []byte, ttlSeconds int64) (string, error) {
	if name == "" {
		return "", common.Errorf(common.ErrInvalidArgument, "secret name is required")
	}
	if ttlSeconds < 0 {
		return "", common.Errorf(common.ErrInvalidArgument, "ttl must be a positive number of seconds, got %d", ttlSeconds)
	}
	if ttlSeconds > options.MaxTTLSeconds {
		return "", common.Errorf(common.ErrInvalidArgument, "ttl must be at most %d seconds, got %d", options.MaxTTLSeconds, ttlSeconds)
	}
	if r.limits.MaxSecretSize > 0 && int64(len(value)) > r.limits.MaxSecretSize {
		return "", common.Errorf(common.ErrInvalidArgument, "secret is %d bytes, the limit is %d", len(value), r.limits.MaxSecretSize)
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl == 0 {
		ttl = r.limits.DefaultTTL
	}

	if r.limits.MaxSecrets > 0 {
		n, err := r.Count(ctx)
		if err != nil {
			return "", err
		}
		if n >= r.limits.MaxSecrets {
			return "", common.Errorf(common.ErrInvalidArgument, "secret limit of %d reached", r.limits.MaxSecrets)
		}
	}

	id := uuid.NewString()

	env, err := r.sealer.Seal(value, []byte(id))
	if err != nil {
		return "", common.Errorf(common.ErrStorage, "sealing secret: %v", err)
	}

	now := r.clock.Now()
	data, err := json.Marshal(newRecord(name, env, now, now.Add(ttl)))
	common.ZeroBytes(env.Key)
	if err != nil {
		return "", common.Errorf(common.ErrStorage, "encoding secret record: %v", err)
	}

	if err := r.area.Put(ctx, keyPath(id), data); err != nil {
		if derr := r.area.Delete(ctx, keyPath(id)); derr != nil {
			clog.FromContext(ctx).Debugf("cleaning up failed secret %s: %v", id, derr)
		}
		return "", common.Errorf(common.ErrStorage, "writing secret record: %v", err)
	}

	r.scheduler.Schedule(id, now.Add(ttl), r.fire)
	r.metrics.SecretStored()
	r.metrics.SetPending(r.scheduler.Pending())

	clog.FromContext(ctx).Debugf("stored secret %s (%s), expires in %v", id, name, ttl)
	return id, nil
}

// load reads and decodes the record for id.
func (r *Registry) load(ctx context.Context, id string) (*record, error) {
	data, err := r.area.Get(ctx, keyPath(id))
	switch {
	case errors.Is(err, volatile.ErrNotFound):
		return nil, common.Errorf(common.ErrNotFound, "secret %q", id)
	case err != nil:
		return nil, common.Errorf(common.ErrStorage, "reading secret %s: %v", id, err)
	}
	return parseRecord(data)
}

// walk visits every record under the secrets namespace. Expired records
// are deleted on the way and not visited. Records that cannot be read are
// visited with their error.
func (r *Registry) walk(ctx context.Context, visit func(id string, rec *record, err error) bool) error {
	keys, err := r.area.List(ctx, KeyPrefix)
	if err != nil {
		return common.Errorf(common.ErrStorage, "listing secrets: %v", err)
	}

	now := r.clock.Now()
	for _, key := range keys {
		id := strings.TrimPrefix(key, KeyPrefix)
		rec, err := r.load(ctx, id)
		if errors.Is(err, common.ErrNotFound) {
			// Removed since the listing started
			continue
		}

		if err == nil && rec.expired(now) {
			r.expire(ctx, id, telemetry.ExpiredOnList, r.scheduler.Cancel(id))
			continue
		}

		if err != nil {
			err = &RecordError{ID: id, Err: err}
		}
		if !visit(id, rec, err) {
			return nil
		}
	}
	return nil
}

// List enumerates the live secrets. Every call reads the area again.
// Expired records found on the way are deleted and skipped. Records that
// cannot be read are reported and the listing continues.
func (r *Registry) List(ctx context.Context) iter.Seq2[Info, error] {
	return func(yield func(Info, error) bool) {
		err := r.walk(ctx, func(id string, rec *record, err error) bool {
			if err != nil {
				return yield(Info{}, err)
			}
			return yield(rec.info(id), nil)
		})
		if err != nil {
			yield(Info{}, err)
		}
	}
}

// Count returns the number of secrets held in the area. Unreadable records
// are counted as they still take space.
func (r *Registry) Count(ctx context.Context) (int, error) {
	n := 0
	err := r.walk(ctx, func(string, *record, error) bool {
		n++
		return true
	})
	return n, err
}

// Get decrypts the secret with id. Expired secrets are deleted and
// reported as not found.
func (r *Registry) Get(ctx context.Context, id string) (*Secret, error) {
	if err := validID(id); err != nil {
		return nil, err
	}

	rec, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if rec.expired(r.clock.Now()) {
		r.expire(ctx, id, telemetry.ExpiredOnGet, r.scheduler.Cancel(id))
		return nil, common.Errorf(common.ErrNotFound, "secret %q", id)
	}

	env, err := rec.envelope()
	if err != nil {
		return nil, err
	}
	defer common.ZeroBytes(env.Key)

	value, err := envelope.Open(env, []byte(id))
	if err != nil {
		return nil, err
	}

	return &Secret{Info: rec.info(id), Value: value}, nil
}

// Delete removes a secret before its ttl runs out.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}

	if _, err := r.area.Get(ctx, keyPath(id)); err != nil {
		if errors.Is(err, volatile.ErrNotFound) {
			return common.Errorf(common.ErrNotFound, "secret %q", id)
		}
		return common.Errorf(common.ErrStorage, "reading secret %s: %v", id, err)
	}

	// The timer stays armed if the delete fails
	if err := r.area.Delete(ctx, keyPath(id)); err != nil {
		return common.Errorf(common.ErrStorage, "deleting secret %s: %v", id, err)
	}

	r.scheduler.Cancel(id)
	r.metrics.SetPending(r.scheduler.Pending())

	clog.FromContext(ctx).Debugf("deleted secret %s", id)
	return nil
}

// Expire removes the record of id if it still exists. It is the action
// armed for every secret and may be called any number of times.
func (r *Registry) Expire(ctx context.Context, id string) {
	r.expire(ctx, id, telemetry.ExpiredByTimer, r.scheduler.Cancel(id))
}

// fire runs when the scheduler hands over the entry of id.
func (r *Registry) fire(ctx context.Context, id string) {
	r.expire(ctx, id, telemetry.ExpiredByTimer, true)
}

// expire deletes the record of id. The expiry is counted only by the path
// that claimed the scheduler entry so no secret is counted twice. Failures
// are logged and never returned.
func (r *Registry) expire(ctx context.Context, id, path string, claimed bool) {
	if err := r.area.Delete(ctx, keyPath(id)); err != nil {
		clog.FromContext(ctx).Debugf("expiring secret %s on %s: %v", id, path, err)
	} else {
		clog.FromContext(ctx).Debugf("expired secret %s on %s", id, path)
	}

	if claimed {
		r.metrics.SecretExpired(path)
	}
	r.metrics.SetPending(r.scheduler.Pending())
}

// Recover arms timers for records already in the area, as left by an
// earlier process sharing the same tmpfs, and removes the ones past due.
// It returns the number of timers armed.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	keys, err := r.area.List(ctx, KeyPrefix)
	if err != nil {
		return 0, common.Errorf(common.ErrStorage, "listing secrets: %v", err)
	}

	now := r.clock.Now()
	armed := 0
	for _, key := range keys {
		id := strings.TrimPrefix(key, KeyPrefix)
		rec, err := r.load(ctx, id)
		if err != nil {
			clog.FromContext(ctx).Warnf("skipping unreadable secret %s: %v", id, err)
			continue
		}

		if rec.expired(now) {
			r.expire(ctx, id, telemetry.ExpiredOnStart, true)
			continue
		}

		r.scheduler.Schedule(id, rec.Expires, r.fire)
		armed++
	}

	r.metrics.SetPending(r.scheduler.Pending())
	if armed > 0 {
		clog.FromContext(ctx).Infof("re-armed expiry for %d secrets", armed)
	}
	return armed, nil
}
