// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package resumer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
)

// ErrCancelled reports that a consumer requested cancellation of the
// recording. The transport completes the producer's upload stream with a
// cancelled status when it sees this error.
var ErrCancelled = errors.New("recording cancelled")

// recordingState tracks where a recording is in its lifecycle.
type recordingState int

const (
	// stateOpen accepts appends and advertises a locator.
	stateOpen recordingState = iota

	// stateClosing accepts no more appends; readers drain up to finalOffset.
	stateClosing

	// stateClosed is terminal: all readers and writers have detached and
	// the spool has been removed.
	stateClosed
)

// recording is the per-conversation spool state. All fields behind mu; the
// condition variable wakes readers on every append and on state changes.
type recording struct {
	conversationUID uuid.UUID
	spoolName       string
	spoolPath       string

	mu   sync.Mutex
	cond *sync.Cond

	state           recordingState
	lastOffset      int64
	finalOffset     int64
	readerCount     int
	writerCount     int
	cancelRequested bool

	// file is the writer handle, owned by the producer until closing.
	file *os.File

	// stopAdvertising ends the locator refresh loop.
	stopAdvertising func()
}

func newRecording(conversationUID uuid.UUID, spoolName, spoolPath string, file *os.File) *recording {
	rec := &recording{
		conversationUID: conversationUID,
		spoolName:       spoolName,
		spoolPath:       spoolPath,
		state:           stateOpen,
		writerCount:     1,
		file:            file,
	}
	rec.cond = sync.NewCond(&rec.mu)
	return rec
}

// append writes a chunk at the current tail and wakes waiting readers.
// Returns the new tail offset. A registered cancellation surfaces as
// ErrCancelled and moves the recording to closing.
func (rec *recording) append(ctx context.Context, chunk []byte) (int64, error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.state != stateOpen {
		return rec.lastOffset, errors.New("recording is no longer open")
	}
	if rec.cancelRequested {
		rec.beginClosingLocked(ctx)
		return rec.lastOffset, ErrCancelled
	}

	n, err := rec.file.WriteAt(chunk, rec.lastOffset)
	rec.lastOffset += int64(n)
	if err != nil {
		// A spool write error abandons the recording. Readers drain
		// whatever made it to disk.
		slog.ErrorContext(ctx, "spool write failed, abandoning recording",
			"error", err,
			"conversation_uid", rec.conversationUID,
		)
		rec.beginClosingLocked(ctx)
		return rec.lastOffset, err
	}

	rec.cond.Broadcast()
	return rec.lastOffset, nil
}

// beginClosingLocked freezes the final offset, stops locator advertising and
// wakes every waiter. Callers hold mu.
func (rec *recording) beginClosingLocked(ctx context.Context) {
	if rec.state != stateOpen {
		return
	}
	rec.state = stateClosing
	rec.finalOffset = rec.lastOffset
	if rec.stopAdvertising != nil {
		rec.stopAdvertising()
	}
	rec.cond.Broadcast()

	slog.DebugContext(ctx, "recording closing",
		"conversation_uid", rec.conversationUID,
		"final_offset", rec.finalOffset,
	)
}

// maybeCloseLocked completes the closing -> closed transition once the last
// reader and writer have detached. The spool removal is best effort; the
// reaper retries orphans. Returns true when the recording reached closed.
func (rec *recording) maybeCloseLocked() bool {
	if rec.state != stateClosing || rec.readerCount > 0 || rec.writerCount > 0 {
		return rec.state == stateClosed
	}
	rec.state = stateClosed
	if rec.file != nil {
		_ = rec.file.Close()
		rec.file = nil
	}
	if err := os.Remove(rec.spoolPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("spool removal deferred to reaper",
			"error", err,
			"spool", rec.spoolPath,
		)
	}
	rec.cond.Broadcast()
	return true
}
