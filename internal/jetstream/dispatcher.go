// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package jetstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/skywatch/internal/database"
	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/metrics"
	"github.com/tomtom215/skywatch/internal/models"
)

// profileSnapshot is the last-seen state for one DID. The map holding these
// is owned by a single stream's reader goroutine; no locking.
type profileSnapshot struct {
	handle      string
	displayName string
	avatarRef   string
}

// DispatcherConfig wires one dispatcher to its owning stream.
type DispatcherConfig struct {
	// Stream labels log lines and metrics ("main" or "temp:<did>").
	Stream string

	// Temp marks a temporary backfill stream. Temp streams always process
	// follow events; the main stream suppresses them while backfilling.
	Temp bool

	Store    Store
	Resolver Resolver

	// InBackfill reports the owning stream's backfill mode. Nil means
	// never backfilling.
	InBackfill func() bool

	// IsMonitoringUser reports whether a DID belongs to a monitoring user.
	IsMonitoringUser func(did string) bool

	// RequestReconcile asks the main stream for a DID-set reconciliation.
	// Nil drops the request.
	RequestReconcile func(source string)
}

// Dispatcher routes decoded Jetstream events to the identity, profile, and
// follow handlers. One instance per stream; not safe for concurrent use.
type Dispatcher struct {
	cfg       DispatcherConfig
	snapshots map[string]*profileSnapshot
}

// NewDispatcher creates a dispatcher with an empty snapshot map.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		snapshots: make(map[string]*profileSnapshot),
	}
}

// HandleEvent processes one event. A nil return means the owning stream may
// advance its cursor past the event; an error means the event should be
// retried via re-delivery (cursor not advanced).
func (d *Dispatcher) HandleEvent(ctx context.Context, ev *models.JetstreamEvent) error {
	switch ev.Kind {
	case models.EventKindIdentity:
		if ev.Identity == nil {
			return nil
		}
		return d.handleIdentity(ctx, ev)
	case models.EventKindCommit:
		if ev.Commit == nil {
			return nil
		}
		switch ev.Commit.Collection {
		case models.CollectionProfile:
			return d.handleProfile(ctx, ev)
		case models.CollectionFollow:
			return d.handleFollow(ctx, ev)
		}
		return nil
	default:
		return nil
	}
}

// handleIdentity records a handle change for a DID.
func (d *Dispatcher) handleIdentity(ctx context.Context, ev *models.JetstreamEvent) error {
	did := ev.DID
	newHandle := ev.Identity.Handle

	// Resolution order for the pre-change handle: snapshot, persisted
	// history, audit log, current document.
	var oldHandle string
	if snap, ok := d.snapshots[did]; ok {
		oldHandle = snap.handle
	}
	if oldHandle == "" {
		stored, err := d.cfg.Store.LastKnownHandle(ctx, did)
		if err != nil {
			return fmt.Errorf("failed to look up last known handle: %w", err)
		}
		oldHandle = stored
	}
	if oldHandle == "" {
		oldHandle = d.cfg.Resolver.ResolvePrevious(ctx, did)
	}
	if oldHandle == "" {
		oldHandle = d.cfg.Resolver.Resolve(ctx, did)
	}

	// The cached document is stale the moment an identity event arrives.
	d.cfg.Resolver.Invalidate(did)

	if snap, ok := d.snapshots[did]; ok {
		snap.handle = newHandle
	} else {
		d.snapshots[did] = &profileSnapshot{handle: newHandle}
	}

	// Initial discoveries (either side empty) are absorbed silently.
	if oldHandle == newHandle || oldHandle == "" || newHandle == "" {
		return nil
	}

	change := &models.ProfileChange{
		DID:       did,
		Handle:    nullableString(newHandle),
		OldHandle: &oldHandle,
		NewHandle: &newHandle,
	}
	if _, err := d.cfg.Store.InsertChange(ctx, change); err != nil {
		return fmt.Errorf("failed to persist handle change: %w", err)
	}

	metrics.EventsProcessed.WithLabelValues(d.cfg.Stream, "identity").Inc()
	logging.Info().
		Str("stream", d.cfg.Stream).
		Str("did", did).
		Str("old_handle", oldHandle).
		Str("new_handle", newHandle).
		Msg("handle change recorded")
	return nil
}

// handleProfile diffs a profile commit against the snapshot.
func (d *Dispatcher) handleProfile(ctx context.Context, ev *models.JetstreamEvent) error {
	op := ev.Commit.Operation
	if op != models.CommitOperationCreate && op != models.CommitOperationUpdate {
		return nil
	}
	if len(ev.Commit.Record) == 0 {
		return nil
	}

	var record models.ProfileRecord
	if err := json.Unmarshal(ev.Commit.Record, &record); err != nil {
		metrics.EventsMalformed.Inc()
		logging.Debug().Err(err).Str("did", ev.DID).Msg("skipping malformed profile record")
		return nil
	}

	did := ev.DID
	newDisplay := record.DisplayName
	newAvatar := record.AvatarRef()

	snap, existed := d.snapshots[did]
	if !existed {
		// First capture is discovery, not a change.
		handle, err := d.cfg.Store.LastKnownHandle(ctx, did)
		if err != nil {
			return fmt.Errorf("failed to bootstrap snapshot: %w", err)
		}
		if handle == "" {
			handle = d.cfg.Resolver.Resolve(ctx, did)
		}
		d.snapshots[did] = &profileSnapshot{
			handle:      handle,
			displayName: newDisplay,
			avatarRef:   newAvatar,
		}
		return nil
	}

	displayChanged := snap.displayName != newDisplay
	avatarChanged := snap.avatarRef != newAvatar
	if !displayChanged && !avatarChanged {
		return nil
	}

	change := &models.ProfileChange{
		DID:    did,
		Handle: nullableString(snap.handle),
	}
	if displayChanged {
		oldDisplay := snap.displayName
		change.OldDisplayName = &oldDisplay
		change.NewDisplayName = &newDisplay
	}
	if avatarChanged {
		oldAvatar := snap.avatarRef
		change.OldAvatar = &oldAvatar
		change.NewAvatar = &newAvatar
	}

	snap.displayName = newDisplay
	snap.avatarRef = newAvatar

	if _, err := d.cfg.Store.InsertChange(ctx, change); err != nil {
		return fmt.Errorf("failed to persist profile change: %w", err)
	}

	metrics.EventsProcessed.WithLabelValues(d.cfg.Stream, "profile").Inc()
	logging.Info().
		Str("stream", d.cfg.Stream).
		Str("did", did).
		Bool("display_name", displayChanged).
		Bool("avatar", avatarChanged).
		Msg("profile change recorded")
	return nil
}

// handleFollow maintains the monitored_follows table from live follow and
// unfollow commits by monitoring users.
func (d *Dispatcher) handleFollow(ctx context.Context, ev *models.JetstreamEvent) error {
	follower := ev.DID
	if d.cfg.IsMonitoringUser == nil || !d.cfg.IsMonitoringUser(follower) {
		return nil
	}

	// While the main stream replays old events its follow commits are
	// stale; only live processing mutates the follow set. Temp streams
	// replay on purpose and always process.
	if !d.cfg.Temp && d.cfg.InBackfill != nil && d.cfg.InBackfill() {
		return nil
	}

	switch ev.Commit.Operation {
	case models.CommitOperationCreate:
		return d.handleFollowCreate(ctx, follower, ev.Commit)
	case models.CommitOperationDelete:
		return d.handleFollowDelete(ctx, follower, ev.Commit)
	default:
		return nil
	}
}

func (d *Dispatcher) handleFollowCreate(ctx context.Context, follower string, commit *models.CommitEvent) error {
	if len(commit.Record) == 0 || commit.RKey == "" {
		return nil
	}

	var record models.FollowRecord
	if err := json.Unmarshal(commit.Record, &record); err != nil {
		metrics.EventsMalformed.Inc()
		logging.Debug().Err(err).Str("did", follower).Msg("skipping malformed follow record")
		return nil
	}
	subject := record.Subject
	if !models.IsValidDID(subject) {
		return nil
	}

	if existing, err := d.cfg.Store.GetFollow(ctx, follower, subject); err == nil && existing != nil {
		if d.cfg.Temp {
			logging.Debug().
				Str("stream", d.cfg.Stream).
				Str("user_did", follower).
				Str("follow_did", subject).
				Msg("follow already persisted")
		}
		return nil
	} else if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to check existing follow: %w", err)
	}

	handle := d.cfg.Resolver.Resolve(ctx, subject)
	if err := d.cfg.Store.UpsertFollow(ctx, &models.MonitoredFollow{
		UserDID:      follower,
		FollowDID:    subject,
		FollowHandle: handle,
		RKey:         commit.RKey,
	}); err != nil {
		return fmt.Errorf("failed to persist follow: %w", err)
	}

	metrics.EventsProcessed.WithLabelValues(d.cfg.Stream, "follow").Inc()
	logging.Info().
		Str("stream", d.cfg.Stream).
		Str("user_did", follower).
		Str("follow_did", subject).
		Str("follow_handle", handle).
		Msg("follow added")

	if d.cfg.RequestReconcile != nil {
		d.cfg.RequestReconcile("follow-create")
	}
	return nil
}

func (d *Dispatcher) handleFollowDelete(ctx context.Context, follower string, commit *models.CommitEvent) error {
	if commit.RKey == "" {
		return nil
	}

	follow, err := d.cfg.Store.FindFollowByRKey(ctx, follower, commit.RKey)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up follow by rkey: %w", err)
	}

	if err := d.cfg.Store.DeleteFollow(ctx, follower, follow.FollowDID); err != nil {
		return fmt.Errorf("failed to delete follow: %w", err)
	}

	metrics.EventsProcessed.WithLabelValues(d.cfg.Stream, "follow").Inc()
	logging.Info().
		Str("stream", d.cfg.Stream).
		Str("user_did", follower).
		Str("follow_did", follow.FollowDID).
		Msg("follow removed")

	// Another monitoring user may still follow the subject; only shrink
	// the wanted set when nobody does.
	stillFollowed, err := d.cfg.Store.IsFollowedByAnyUser(ctx, follow.FollowDID)
	if err != nil {
		return fmt.Errorf("failed to check remaining followers: %w", err)
	}
	if !stillFollowed && d.cfg.RequestReconcile != nil {
		d.cfg.RequestReconcile("follow-delete")
	}
	return nil
}

// SnapshotCount reports how many DIDs the dispatcher has state for.
func (d *Dispatcher) SnapshotCount() int {
	return len(d.snapshots)
}

// nullableString maps the empty string to nil so unknown handles land
// as NULL rather than "".
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
