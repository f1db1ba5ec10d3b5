// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package resumer records in-flight streaming responses to local spool
// files and replays them to late or reconnecting readers. At most one
// recording is open per conversation across the fleet; a shared locator
// with a short TTL points every other instance at the owner.
package resumer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// replayChunkSize bounds how much spool data a replay reads per iteration.
const replayChunkSize = 32 * 1024

// spoolPrefix names spool files so the reaper can recognize them.
const spoolPrefix = "memsvc-spool-"

// Redirect reports that another instance owns the recording. It is not a
// failure: the transport surfaces it as a successful message carrying the
// address for the client to follow.
type Redirect struct {
	Address string
}

// Error implements the error interface.
func (r *Redirect) Error() string {
	return fmt.Sprintf("recording is owned by %s", r.Address)
}

// Config carries the resumer knobs from the service configuration.
type Config struct {
	// Enabled gates the whole feature. When false every operation fails
	// with a service-unavailable error except IsEnabled.
	Enabled bool

	// SpoolDir is where spool files live. Empty means the OS temp dir.
	SpoolDir string

	// AdvertisedAddress is the externally reachable host:port published in
	// locators. Empty disables redirects for off-instance callers.
	AdvertisedAddress string
}

// registryOption configures the registry.
type registryOption func(*Registry)

// WithResumerConfig sets the resumer configuration.
func WithResumerConfig(config Config) registryOption {
	return func(r *Registry) {
		r.config = config
	}
}

// WithResumerLocators sets the shared locator store.
func WithResumerLocators(locators port.LocatorStore) registryOption {
	return func(r *Registry) {
		r.locators = locators
	}
}

// WithResumerConversations sets the conversation reader used to resolve a
// conversation to its group.
func WithResumerConversations(conversations port.ConversationReader) registryOption {
	return func(r *Registry) {
		r.conversations = conversations
	}
}

// WithResumerMemberships sets the membership reader backing access checks.
func WithResumerMemberships(memberships port.MembershipReader) registryOption {
	return func(r *Registry) {
		r.access = service.NewAccessPolicy(memberships)
	}
}

// Registry tracks the recordings owned by this instance.
type Registry struct {
	config        Config
	locators      port.LocatorStore
	conversations port.ConversationReader
	access        service.AccessPolicy

	mu         sync.Mutex
	recordings map[uuid.UUID]*recording
}

// NewRegistry creates the recording registry using the option pattern.
func NewRegistry(opts ...registryOption) *Registry {
	r := &Registry{
		recordings: make(map[uuid.UUID]*recording),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.config.SpoolDir == "" {
		r.config.SpoolDir = os.TempDir()
	}
	if r.config.Enabled && r.config.AdvertisedAddress == "" {
		slog.Warn("response resumer has no advertised address, redirects to this instance will fail")
	}
	return r
}

// IsEnabled reports whether the resumer is configured on.
func (r *Registry) IsEnabled() bool {
	return r.config.Enabled
}

// StartRecording opens a recording for the conversation and returns the
// producer handle. The caller must present both an agent credential and
// writer access on the group. A second concurrent recording conflicts.
func (r *Registry) StartRecording(ctx context.Context, principal model.Principal, conversationUID uuid.UUID) (*Recorder, error) {
	if !r.config.Enabled {
		return nil, errs.NewServiceUnavailable("response resumer is disabled")
	}
	if !principal.IsAgent() {
		return nil, errs.NewForbidden("recording requires an agent credential")
	}
	groupUID, err := r.resolveGroup(ctx, conversationUID)
	if err != nil {
		return nil, err
	}
	if _, err := r.access.Require(ctx, principal, groupUID, model.AccessWriter); err != nil {
		return nil, err
	}

	spoolName := spoolPrefix + uuid.New().String()
	spoolPath := filepath.Join(r.config.SpoolDir, spoolName)
	file, err := os.OpenFile(spoolPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errs.NewUnexpected("failed to create spool file", err)
	}

	rec := newRecording(conversationUID, spoolName, spoolPath, file)

	r.mu.Lock()
	if existing, ok := r.recordings[conversationUID]; ok {
		existing.mu.Lock()
		busy := existing.state != stateClosed
		existing.mu.Unlock()
		if busy {
			r.mu.Unlock()
			_ = file.Close()
			_ = os.Remove(spoolPath)
			return nil, errs.NewConflict("a recording is already in progress for this conversation")
		}
	}
	r.recordings[conversationUID] = rec
	r.mu.Unlock()

	r.advertise(rec)

	slog.DebugContext(ctx, "recording started",
		"conversation_uid", conversationUID,
		"spool", spoolName,
	)
	return &Recorder{registry: r, rec: rec}, nil
}

// Replay streams the spool content of the conversation's recording to the
// sink, then follows live appends until the recording closes. A recording
// owned by another instance returns a *Redirect.
func (r *Registry) Replay(ctx context.Context, principal model.Principal, conversationUID uuid.UUID, sink func(chunk []byte) error) error {
	if !r.config.Enabled {
		return errs.NewServiceUnavailable("response resumer is disabled")
	}
	groupUID, err := r.resolveGroup(ctx, conversationUID)
	if err != nil {
		return err
	}
	if _, err := r.access.Require(ctx, principal, groupUID, model.AccessReader); err != nil {
		return err
	}

	rec, err := r.lookup(ctx, conversationUID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	if rec.state == stateClosed {
		rec.mu.Unlock()
		return errs.NewNotFound("no response in progress for conversation")
	}
	rec.readerCount++
	rec.mu.Unlock()
	defer r.detachReader(rec)

	spool, err := os.Open(rec.spoolPath)
	if err != nil {
		return errs.NewUnexpected("failed to open spool file", err)
	}
	defer func() { _ = spool.Close() }()

	// Waiters park on the condition variable; caller cancellation has to
	// wake them explicitly.
	stop := context.AfterFunc(ctx, rec.cond.Broadcast)
	defer stop()

	buffer := make([]byte, replayChunkSize)
	var readOffset int64
	for {
		rec.mu.Lock()
		for readOffset >= rec.lastOffset && rec.state == stateOpen && ctx.Err() == nil {
			rec.cond.Wait()
		}
		tail := rec.lastOffset
		done := rec.state != stateOpen && readOffset >= rec.finalOffset
		rec.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return err
		}
		if done {
			return nil
		}

		chunk := buffer
		if remaining := tail - readOffset; remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}
		n, err := spool.ReadAt(chunk, readOffset)
		if n > 0 {
			if sendErr := sink(chunk[:n]); sendErr != nil {
				return sendErr
			}
			readOffset += int64(n)
		}
		if err != nil {
			return errs.NewUnexpected("failed to read spool file", err)
		}
	}
}

// Cancel registers a cancellation request against the conversation's
// recording and waits a bounded time for the producer to wind down. The
// request is accepted as soon as it is registered, even when the producer
// takes longer than the wait.
func (r *Registry) Cancel(ctx context.Context, principal model.Principal, conversationUID uuid.UUID) (bool, error) {
	if !r.config.Enabled {
		return false, errs.NewServiceUnavailable("response resumer is disabled")
	}
	if !principal.IsUser() && !principal.Admin {
		return false, errs.NewForbidden("cancellation requires a user identity")
	}
	groupUID, err := r.resolveGroup(ctx, conversationUID)
	if err != nil {
		return false, err
	}
	if _, err := r.access.Require(ctx, principal, groupUID, model.AccessWriter); err != nil {
		return false, err
	}

	rec, err := r.lookup(ctx, conversationUID)
	if err != nil {
		return false, err
	}

	stop := context.AfterFunc(ctx, rec.cond.Broadcast)
	defer stop()

	timedOut := false
	timer := time.AfterFunc(constants.CancelWaitTimeout, func() {
		rec.mu.Lock()
		timedOut = true
		rec.mu.Unlock()
		rec.cond.Broadcast()
	})
	defer timer.Stop()

	rec.mu.Lock()
	rec.cancelRequested = true
	rec.cond.Broadcast()
	for rec.state != stateClosed && !timedOut && ctx.Err() == nil {
		rec.cond.Wait()
	}
	closed := rec.state == stateClosed
	rec.mu.Unlock()

	if !closed {
		slog.DebugContext(ctx, "cancellation registered, producer still winding down",
			"conversation_uid", conversationUID,
		)
	}
	return true, nil
}

// CheckRecordings returns the subset of the given conversations with a
// recording currently in progress anywhere in the fleet. Conversations the
// principal cannot read are silently dropped.
func (r *Registry) CheckRecordings(ctx context.Context, principal model.Principal, conversationUIDs []uuid.UUID) ([]uuid.UUID, error) {
	if !r.config.Enabled {
		return nil, errs.NewServiceUnavailable("response resumer is disabled")
	}

	inProgress := make([]uuid.UUID, 0, len(conversationUIDs))
	for _, conversationUID := range conversationUIDs {
		groupUID, err := r.resolveGroup(ctx, conversationUID)
		if err != nil {
			continue
		}
		if _, err := r.access.Require(ctx, principal, groupUID, model.AccessReader); err != nil {
			continue
		}

		if rec := r.local(conversationUID); rec != nil {
			rec.mu.Lock()
			open := rec.state != stateClosed
			rec.mu.Unlock()
			if open {
				inProgress = append(inProgress, conversationUID)
			}
			continue
		}
		if _, err := r.locators.GetLocator(ctx, conversationUID); err == nil {
			inProgress = append(inProgress, conversationUID)
		}
	}
	return inProgress, nil
}

// lookup finds the live local recording, or resolves the locator for a
// redirect. A conversation with neither is not being recorded.
func (r *Registry) lookup(ctx context.Context, conversationUID uuid.UUID) (*recording, error) {
	if rec := r.local(conversationUID); rec != nil {
		return rec, nil
	}

	locator, err := r.locators.GetLocator(ctx, conversationUID)
	if err != nil {
		return nil, errs.NewNotFound("no response in progress for conversation")
	}
	if locator.Address != "" && locator.Address != r.config.AdvertisedAddress {
		return nil, &Redirect{Address: locator.Address}
	}
	// A locator pointing here without a live recording is stale, likely
	// left over from a previous process. The TTL will clear it.
	return nil, errs.NewNotFound("no response in progress for conversation")
}

// local returns this instance's recording for the conversation, if any.
func (r *Registry) local(conversationUID uuid.UUID) *recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recordings[conversationUID]
}

// resolveGroup maps a conversation to its group for access checks.
func (r *Registry) resolveGroup(ctx context.Context, conversationUID uuid.UUID) (uuid.UUID, error) {
	conversation, _, err := r.conversations.GetConversation(ctx, conversationUID)
	if err != nil {
		return uuid.Nil, err
	}
	return conversation.GroupUID, nil
}

// advertise publishes the locator now and keeps refreshing it until the
// recording leaves the open state. Deleting the locator on exit is best
// effort; the TTL covers a crashed instance.
func (r *Registry) advertise(rec *recording) {
	ctx, cancel := context.WithCancel(context.Background())
	rec.mu.Lock()
	rec.stopAdvertising = cancel
	rec.mu.Unlock()

	locator := &model.ResponseLocator{
		Address:   r.config.AdvertisedAddress,
		SpoolName: rec.spoolName,
	}
	if err := r.locators.PublishLocator(ctx, rec.conversationUID, locator); err != nil {
		slog.Warn("failed to publish recording locator",
			"error", err,
			"conversation_uid", rec.conversationUID,
		)
	}

	go func() {
		ticker := time.NewTicker(constants.LocatorRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				deleteCtx, deleteCancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := r.locators.DeleteLocator(deleteCtx, rec.conversationUID); err != nil {
					slog.Warn("failed to delete recording locator",
						"error", err,
						"conversation_uid", rec.conversationUID,
					)
				}
				deleteCancel()
				return
			case <-ticker.C:
				if err := r.locators.PublishLocator(ctx, rec.conversationUID, locator); err != nil {
					slog.Warn("failed to refresh recording locator",
						"error", err,
						"conversation_uid", rec.conversationUID,
					)
				}
			}
		}
	}()
}

// detachReader drops a reader reference and finishes the close when it was
// the last party attached.
func (r *Registry) detachReader(rec *recording) {
	rec.mu.Lock()
	rec.readerCount--
	closed := rec.maybeCloseLocked()
	rec.mu.Unlock()
	if closed {
		r.remove(rec)
	}
}

// detachWriter drops the writer reference, moving the recording to closing
// first if the producer never completed explicitly.
func (r *Registry) detachWriter(ctx context.Context, rec *recording) {
	rec.mu.Lock()
	rec.beginClosingLocked(ctx)
	if rec.writerCount > 0 {
		rec.writerCount--
	}
	closed := rec.maybeCloseLocked()
	rec.mu.Unlock()
	if closed {
		r.remove(rec)
	}
}

// remove forgets a closed recording.
func (r *Registry) remove(rec *recording) {
	r.mu.Lock()
	if r.recordings[rec.conversationUID] == rec {
		delete(r.recordings, rec.conversationUID)
	}
	r.mu.Unlock()
}

// Recorder is the producer handle of an open recording.
type Recorder struct {
	registry *Registry
	rec      *recording
}

// Append spools a chunk and returns the new tail offset for write
// acknowledgements. ErrCancelled reports a pending cancellation; the
// producer must stop and Close.
func (w *Recorder) Append(ctx context.Context, chunk []byte) (int64, error) {
	return w.rec.append(ctx, chunk)
}

// Close ends the producer's side of the recording. Readers drain what was
// spooled; the recording closes once the last of them detaches.
func (w *Recorder) Close(ctx context.Context) {
	w.registry.detachWriter(ctx, w.rec)
}

// ConversationUID identifies the conversation being recorded.
func (w *Recorder) ConversationUID() uuid.UUID {
	return w.rec.conversationUID
}
