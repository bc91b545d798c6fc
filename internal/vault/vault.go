// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package vault assembles the session and secret registries over a single
// volatile area and runs the expiry worker.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/carabiner-dev/tmpvault/internal/envelope"
	"github.com/carabiner-dev/tmpvault/internal/expiry"
	"github.com/carabiner-dev/tmpvault/internal/secret"
	"github.com/carabiner-dev/tmpvault/internal/session"
	"github.com/carabiner-dev/tmpvault/internal/telemetry"
	ivolatile "github.com/carabiner-dev/tmpvault/internal/volatile"
	"github.com/carabiner-dev/tmpvault/options"
	"github.com/carabiner-dev/tmpvault/volatile"
)

// SecurityInfo describes where the vault keeps its data.
type SecurityInfo struct {
	Backend         string
	Location        string
	Volatile        bool
	Cipher          string
	ActiveSessions  int
	Secrets         int
	PendingExpiries int
}

type config struct {
	clock      expiry.Clock
	registerer prometheus.Registerer
	area       volatile.Area
	noWorker   bool
}

// Option configures a vault.
type Option func(*config)

// WithClock sets the time source, the system clock by default.
func WithClock(c expiry.Clock) Option {
	return func(cfg *config) { cfg.clock = c }
}

// WithRegisterer registers the vault metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(cfg *config) { cfg.registerer = r }
}

// WithArea uses area instead of opening the backend named in the options.
func WithArea(area volatile.Area) Option {
	return func(cfg *config) { cfg.area = area }
}

// WithoutWorker leaves timers to be fired by RunDue.
func WithoutWorker() Option {
	return func(cfg *config) { cfg.noWorker = true }
}

// Vault is the assembled store.
type Vault struct {
	area      volatile.Area
	sealer    *envelope.Sealer
	scheduler *expiry.Scheduler
	sessions  *session.Registry
	secrets   *secret.Registry
	metrics   *telemetry.Metrics

	stop context.CancelFunc
	done chan struct{}
}

// New opens the storage area, recovers any secrets already in it and starts
// the expiry worker.
func New(ctx context.Context, opts *options.Server, fns ...Option) (*Vault, error) {
	cfg := &config{clock: expiry.SystemClock()}
	for _, fn := range fns {
		fn(cfg)
	}

	area := cfg.area
	if area == nil {
		var err error
		area, err = ivolatile.Open(ctx, &opts.Storage)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
	}

	sealer, err := envelope.NewSealer(opts.Cipher)
	if err != nil {
		closeArea(area)
		return nil, fmt.Errorf("creating sealer: %w", err)
	}

	metrics := telemetry.NewMetrics(cfg.registerer)
	scheduler := expiry.NewScheduler(cfg.clock)

	v := &Vault{
		area:      area,
		sealer:    sealer,
		scheduler: scheduler,
		metrics:   metrics,
		sessions:  session.NewRegistry(area, cfg.clock, metrics),
		secrets: secret.NewRegistry(area, sealer, scheduler, cfg.clock, metrics, secret.Limits{
			DefaultTTL:    opts.DefaultTTL,
			MaxSecretSize: opts.MaxSecretSize,
			MaxSecrets:    opts.MaxSecrets,
		}),
		done: make(chan struct{}),
	}

	if _, err := v.secrets.Recover(ctx); err != nil {
		closeArea(area)
		return nil, fmt.Errorf("recovering secrets: %w", err)
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	v.stop = cancel
	if cfg.noWorker {
		close(v.done)
	} else {
		go func() {
			defer close(v.done)
			scheduler.Run(workerCtx)
		}()
	}

	return v, nil
}

func closeArea(area volatile.Area) {
	if c, ok := area.(io.Closer); ok {
		c.Close() //nolint:errcheck,gosec
	}
}

// CreateSession registers a session for userID.
func (v *Vault) CreateSession(ctx context.Context, userID string, payload []byte) (string, error) {
	return v.sessions.Create(ctx, userID, payload)
}

// GetSession returns a verified session.
func (v *Vault) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return v.sessions.Get(ctx, id)
}

// DeleteSession removes a session and its verification key.
func (v *Vault) DeleteSession(ctx context.Context, id string) error {
	return v.sessions.Delete(ctx, id)
}

// StoreSecret encrypts and stores value for ttlSeconds.
func (v *Vault) StoreSecret(ctx context.Context, name string, value []byte, ttlSeconds int64) (string, error) {
	return v.secrets.Store(ctx, name, value, ttlSeconds)
}

// ListSecrets enumerates live secrets.
func (v *Vault) ListSecrets(ctx context.Context) iter.Seq2[secret.Info, error] {
	return v.secrets.List(ctx)
}

// GetSecret decrypts a secret.
func (v *Vault) GetSecret(ctx context.Context, id string) (*secret.Secret, error) {
	return v.secrets.Get(ctx, id)
}

// DeleteSecret removes a secret before it expires.
func (v *Vault) DeleteSecret(ctx context.Context, id string) error {
	return v.secrets.Delete(ctx, id)
}

// SecurityInfo reports the storage backend and the counts of live objects.
func (v *Vault) SecurityInfo(ctx context.Context) (*SecurityInfo, error) {
	n, err := v.secrets.Count(ctx)
	if err != nil {
		return nil, err
	}

	info := &SecurityInfo{
		Cipher:          string(v.sealer.Cipher()),
		ActiveSessions:  v.sessions.Len(),
		Secrets:         n,
		PendingExpiries: v.scheduler.Pending(),
	}
	if d, ok := v.area.(volatile.Describer); ok {
		desc := d.Describe()
		info.Backend = desc.Backend
		info.Location = desc.Location
		info.Volatile = desc.Volatile
	}
	return info, nil
}

// Metrics returns the vault collectors.
func (v *Vault) Metrics() *telemetry.Metrics {
	return v.metrics
}

// NextExpiry returns when the next armed timer fires.
func (v *Vault) NextExpiry() (time.Time, bool) {
	return v.scheduler.Next()
}

// RunDue fires the timers that are due. Used when the vault runs without
// its worker.
func (v *Vault) RunDue(ctx context.Context) int {
	return v.scheduler.RunDue(ctx)
}

// Close stops the expiry worker, drops all sessions and closes the area.
// Secrets stay in the area until it goes away with the process.
func (v *Vault) Close(ctx context.Context) error {
	v.stop()
	<-v.done

	var errs []error
	if err := v.sessions.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if c, ok := v.area.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}

	clog.FromContext(ctx).Debugf("vault closed")
	return errors.Join(errs...)
}
