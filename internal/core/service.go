package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/rolodex/internal/logging"
)

// Options tunes the import pipeline. Zero durations disable the pacing
// delays, which tests rely on.
type Options struct {
	Limits Limits

	// MaxBatchRows caps rows per normalization or merge batch.
	MaxBatchRows int
	// Concurrency caps simultaneous Normalizer calls within a batch.
	Concurrency int
	// SaveBatchSize is the number of contacts written per BulkPut.
	SaveBatchSize int

	PreviewDelay  time.Duration
	BatchDelay    time.Duration
	CompleteDelay time.Duration

	MaxConcurrentImports int
	MaxWait              time.Duration
	ImportTimeout        time.Duration
	// SessionTTL is how long a finished session stays readable.
	SessionTTL time.Duration

	// NewID generates contact ids. Defaults to random UUIDs.
	NewID func() string
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		Limits:               DefaultLimits,
		MaxBatchRows:         25,
		Concurrency:          5,
		SaveBatchSize:        100,
		PreviewDelay:         500 * time.Millisecond,
		BatchDelay:           200 * time.Millisecond,
		CompleteDelay:        3 * time.Second,
		MaxConcurrentImports: DefaultMaxConcurrentImports,
		MaxWait:              DefaultMaxWaitTime,
		ImportTimeout:        30 * time.Minute,
		SessionTTL:           10 * time.Minute,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.Limits.MaxContacts <= 0 {
		o.Limits.MaxContacts = d.Limits.MaxContacts
	}
	if o.Limits.MaxRecordTokens <= 0 {
		o.Limits.MaxRecordTokens = d.Limits.MaxRecordTokens
	}
	if o.Limits.ApproachingRatio <= 0 || o.Limits.ApproachingRatio > 1 {
		o.Limits.ApproachingRatio = d.Limits.ApproachingRatio
	}
	if o.MaxBatchRows <= 0 {
		o.MaxBatchRows = d.MaxBatchRows
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.SaveBatchSize <= 0 {
		o.SaveBatchSize = d.SaveBatchSize
	}
	if o.ImportTimeout <= 0 {
		o.ImportTimeout = d.ImportTimeout
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = d.SessionTTL
	}
	if o.NewID == nil {
		o.NewID = func() string { return uuid.NewString() }
	}
}

// Service runs contact imports. Each import is a session driven by its own
// goroutine; callers interact with it through the methods below.
type Service struct {
	store      ContactStore
	normalizer Normalizer
	opts       Options
	limiter    *ImportLimiter

	mu       sync.RWMutex
	sessions map[string]*session
	byUser   map[string]string // latest session id per user
}

// NewService creates a Service. normalizer may be nil, in which case files
// in an unrecognized format fail at the normalizing stage.
func NewService(store ContactStore, normalizer Normalizer, opts Options) *Service {
	opts.applyDefaults()
	return &Service{
		store:      store,
		normalizer: normalizer,
		opts:       opts,
		limiter:    NewImportLimiter(opts.MaxConcurrentImports, opts.MaxWait),
		sessions:   make(map[string]*session),
		byUser:     make(map[string]string),
	}
}

// Limits returns the configured limits.
func (s *Service) Limits() Limits { return s.opts.Limits }

// Start reads the file and begins an import for userID. A malformed file
// fails with ErrParse before any session exists. Returns the import id;
// use Subscribe or Session to follow it.
func (s *Service) Start(ctx context.Context, userID, fileName string, r io.Reader) (string, error) {
	file, err := ReadCSV(r)
	if err != nil {
		return "", err
	}

	if err := s.limiter.Acquire(ctx, userID); err != nil {
		return "", err
	}

	id := uuid.NewString()
	importCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ImportTimeout)
	sess := newSession(id, userID, fileName, file, cancel)

	s.mu.Lock()
	if prev, ok := s.byUser[userID]; ok {
		delete(s.sessions, prev)
	}
	s.sessions[id] = sess
	s.byUser[userID] = id
	s.mu.Unlock()

	log := logging.WithFields(ctx, "import_id", id, "user_id", userID)
	log.Info("import started", "file", fileName, "rows", len(file.Rows), "bytes", file.Size)

	go func() {
		defer s.limiter.Release(userID)
		defer s.finish(sess)
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic in import", "panic", rec)
				s.fail(sess, log, fmt.Errorf("internal error: %v", rec))
			}
		}()
		s.run(importCtx, sess, log)
	}()

	return id, nil
}

// Confirm accepts the preview and starts processing rows.
func (s *Service) Confirm(ctx context.Context, id string) error {
	return s.send(ctx, id, StatusPreview, decision{kind: decideConfirm})
}

// DecideOversized answers the oversized-records prompt.
func (s *Service) DecideOversized(ctx context.Context, id string, d OversizedDecision) error {
	switch d.Action {
	case OversizedSkipAll, OversizedSkipSelected, OversizedContinue:
	default:
		return fmt.Errorf("%w: oversized action %q", ErrInvalidDecision, d.Action)
	}
	return s.send(ctx, id, StatusOversized, decision{kind: decideOversized, oversized: d})
}

// Resolve applies a decision to the duplicate at the head of the queue,
// or to the whole queue for merge-all and skip-all.
func (s *Service) Resolve(ctx context.Context, id string, r Resolution) error {
	if _, err := ParseResolution(string(r)); err != nil {
		return fmt.Errorf("%w: resolution %q", ErrInvalidDecision, r)
	}
	return s.send(ctx, id, StatusResolving, decision{kind: decideResolve, resolution: r})
}

// Cancel aborts an import at any stage. Nothing further is persisted and
// the session returns to idle.
func (s *Service) Cancel(id string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	select {
	case <-sess.done:
		return s.Dismiss(id)
	default:
	}
	sess.cancel()
	return nil
}

// Dismiss clears a finished session. A session showing its completion
// summary skips the remaining display delay.
func (s *Service) Dismiss(id string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}

	select {
	case <-sess.done:
	default:
		if sess.getStatus() != StatusComplete {
			return fmt.Errorf("%w: import is still running", ErrInvalidDecision)
		}
		sess.cancel()
		<-sess.done
	}

	sess.mu.Lock()
	sess.status = StatusIdle
	sess.mu.Unlock()
	s.remove(sess)
	return nil
}

// Session returns a snapshot of an import.
func (s *Service) Session(id string) (SessionView, error) {
	sess, err := s.get(id)
	if err != nil {
		return SessionView{}, err
	}
	return sess.view(), nil
}

// ActiveSession returns the user's most recent import, if still tracked.
func (s *Service) ActiveSession(userID string) (SessionView, bool) {
	s.mu.RLock()
	id, ok := s.byUser[userID]
	sess := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess == nil {
		return SessionView{}, false
	}
	return sess.view(), true
}

// Subscribe streams the import's events with Seq > afterSeq, in order.
// Reconnecting callers pass the last Seq they saw. The channel is closed
// when the import's event log ends or ctx is done.
func (s *Service) Subscribe(ctx context.Context, id string, afterSeq int64) (<-chan Event, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		last := afterSeq
		for {
			events, changed, closed := sess.eventsAfter(last)
			for _, ev := range events {
				select {
				case ch <- ev:
					last = ev.Seq
				case <-ctx.Done():
					return
				}
			}
			if closed && len(events) == 0 {
				return
			}
			if len(events) > 0 {
				continue
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Capacity reports how full the user's contact list is.
func (s *Service) Capacity(ctx context.Context, userID string) (CapacityStatus, error) {
	count, err := s.store.Count(ctx, userID)
	if err != nil {
		return CapacityStatus{}, fmt.Errorf("count contacts: %w", err)
	}
	return s.opts.Limits.Capacity(count), nil
}

// Contacts lists the user's stored contacts.
func (s *Service) Contacts(ctx context.Context, userID string) ([]Contact, error) {
	return s.store.List(ctx, userID)
}

// DeleteContact removes one stored contact.
func (s *Service) DeleteContact(ctx context.Context, userID, id string) error {
	return s.store.Delete(ctx, userID, id)
}

// ResetContacts deletes every stored contact of userID and returns how
// many were removed. It holds the user's import slot while it runs, so it
// fails with ErrImportInProgress when an import is active.
func (s *Service) ResetContacts(ctx context.Context, userID string) (int, error) {
	if err := s.limiter.Acquire(ctx, userID); err != nil {
		return 0, err
	}
	defer s.limiter.Release(userID)

	contacts, err := s.store.List(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list contacts: %w", err)
	}

	deleted := 0
	for _, c := range contacts {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		err := s.store.Delete(ctx, userID, c.ID)
		if err != nil && !errors.Is(err, ErrContactNotFound) {
			return deleted, fmt.Errorf("delete contact %s: %w", c.ID, err)
		}
		deleted++
	}

	logging.FromContext(ctx).Info("contacts reset", "user_id", userID, "deleted", deleted)
	return deleted, nil
}

// ExportCSV writes the user's contacts in the rolodex layout.
func (s *Service) ExportCSV(ctx context.Context, userID string, w io.Writer) (int, error) {
	contacts, err := s.store.List(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list contacts: %w", err)
	}
	return len(contacts), WriteCSV(w, contacts)
}

// LimiterStatus reports global import slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx is done.
// Used during graceful shutdown.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// CancelAll cancels every running import.
func (s *Service) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		sess.cancel()
	}
}

// send delivers a decision to a session waiting in want. The status check
// and enqueue happen under the session lock so a decision can never be
// left behind by a state change.
func (s *Service) send(ctx context.Context, id string, want Status, d decision) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}

	d.reply = make(chan error, 1)

	sess.mu.Lock()
	if sess.status != want {
		st := sess.status
		sess.mu.Unlock()
		return fmt.Errorf("%w: import is %s", ErrInvalidDecision, st)
	}
	select {
	case sess.decisions <- d:
	default:
		sess.mu.Unlock()
		return fmt.Errorf("%w: a decision is already pending", ErrInvalidDecision)
	}
	sess.mu.Unlock()

	select {
	case err := <-d.reply:
		return err
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) get(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	return sess, nil
}

func (s *Service) remove(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[sess.id]; ok && cur == sess {
		delete(s.sessions, sess.id)
	}
	if s.byUser[sess.userID] == sess.id {
		delete(s.byUser, sess.userID)
	}
}

// finish ends the session's event log and schedules its removal.
func (s *Service) finish(sess *session) {
	sess.closeLog()
	sess.cancel()
	close(sess.done)
	s.cleanup(sess, s.opts.SessionTTL)
}

// cleanup removes the session from tracking after a delay.
func (s *Service) cleanup(sess *session, delay time.Duration) {
	time.AfterFunc(delay, func() { s.remove(sess) })
}

// fail moves the session to the error state and reports err.
func (s *Service) fail(sess *session, log *slog.Logger, err error) {
	msg := MapError(err)
	log.Error("import failed", "error", err, "code", msg.Code)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.status = StatusError
	sess.failure = &msg
	sess.progress = Progress{Message: msg.Message}
	view := sess.viewLocked()
	sess.emitLocked(Event{Type: EventStatus, Status: StatusError, Message: msg.Message, Session: &view})
	sess.emitLocked(Event{Type: EventError, Message: msg.Message, Code: msg.Code})
}

// isCancel reports whether err means the user abandoned the import.
func isCancel(err error) bool {
	return errors.Is(err, ErrResolutionCancelled) || errors.Is(err, context.Canceled)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
