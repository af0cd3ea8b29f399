package session

import (
	"context"
	"time"

	"github.com/hearthhq/hearth/internal/client"
	"github.com/hearthhq/hearth/internal/settings"
)

// The scheduler guarantees at most one in-flight save and that every edit
// reaches a completed save. An edit restarts the debounce clock while no
// save is running; an edit during a save queues exactly one follow-up
// round instead of starting a second request.
type saveState int

const (
	stateClean saveState = iota
	stateDirtyPending // debounce timer running
	stateSaving       // one save in flight
	stateSavingRetry  // save in flight, edits arrived meanwhile
)

// pokeLocked advances the state machine for one edit.
func (s *Session) pokeLocked() {
	switch s.state {
	case stateClean:
		s.state = stateDirtyPending
		s.restartTimerLocked()
	case stateDirtyPending:
		s.restartTimerLocked()
	case stateSaving:
		s.state = stateSavingRetry
	case stateSavingRetry:
		// already queued
	}
}

func (s *Session) restartTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.debounceFired)
}

func (s *Session) debounceFired() {
	s.mu.Lock()
	if s.state != stateDirtyPending {
		s.mu.Unlock()
		return
	}
	s.state = stateSaving
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.saveLoop(snap)
}

// saveSnapshot is what one save round transmits. The trees are deep
// copies taken at collection time: a save reflects the document at the
// moment its collection pass ran, not at debounce start, and later edits
// cannot leak into an in-flight request.
type saveSnapshot struct {
	primary     settings.Tree
	auxiliary   settings.Tree
	savePrimary bool
	saveAux     bool
}

func (s *Session) snapshotLocked() saveSnapshot {
	s.collectLocked()
	snap := saveSnapshot{savePrimary: s.dirtyPrim, saveAux: s.dirtyAux}
	if snap.savePrimary {
		snap.primary = settings.Clone(s.primary)
	}
	if snap.saveAux {
		snap.auxiliary = settings.Clone(s.auxiliary)
	}
	s.dirtyPrim, s.dirtyAux = false, false
	return snap
}

// saveLoop runs save rounds until no edits arrived mid-save.
func (s *Session) saveLoop(snap saveSnapshot) {
	for {
		s.saveRound(snap)

		s.mu.Lock()
		if s.state == stateSavingRetry {
			s.state = stateSaving
			snap = s.snapshotLocked()
			s.mu.Unlock()
			continue
		}
		s.state = stateClean
		settle := s.saveSettle
		s.saveSettle = nil
		s.mu.Unlock()
		if settle != nil {
			close(settle)
		}
		return
	}
}

// saveRound transmits one snapshot: the primary document first, the
// auxiliary one after it settles, each gated by its own dirty flag.
// Failures surface through OnError and are not retried here — the
// canonical trees keep the edits, they are merely not yet persisted.
func (s *Session) saveRound(snap saveSnapshot) {
	ctx := context.Background()
	var result client.SaveResult
	var savedAny bool
	var firstErr error

	if snap.savePrimary {
		res, err := s.saver.SaveSettings(ctx, snap.primary)
		if err != nil {
			firstErr = err
		} else {
			result = res
			savedAny = true
		}
	}
	if snap.saveAux {
		if _, err := s.saver.SaveAuxiliary(ctx, snap.auxiliary); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			savedAny = true
		}
	}

	if firstErr != nil {
		s.onError(firstErr)
		return
	}
	if savedAny {
		s.onSaved(result)
	}
}

// Flush persists pending edits without waiting for the debounce window:
// a pending round runs synchronously, an in-flight round is waited for.
// Used on session teardown.
func (s *Session) Flush() {
	s.mu.Lock()
	switch s.state {
	case stateDirtyPending:
		if s.timer != nil {
			s.timer.Stop()
		}
		s.state = stateSaving
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.saveLoop(snap)
	case stateSaving, stateSavingRetry:
		settle := s.saveSettle
		if settle == nil {
			settle = make(chan struct{})
			s.saveSettle = settle
		}
		s.mu.Unlock()
		<-settle
	default:
		s.mu.Unlock()
	}
}

// Close flushes pending edits and stops the debounce timer. The session
// must not be used afterwards.
func (s *Session) Close() {
	s.Flush()
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
}
