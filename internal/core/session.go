package core

import (
	"context"
	"sync"
	"time"
)

// Status is the import state-machine tag.
type Status string

const (
	StatusIdle               Status = "idle"
	StatusDetecting          Status = "detecting"
	StatusPreview            Status = "preview"
	StatusProcessing         Status = "processing"
	StatusNormalizing        Status = "normalizing"
	StatusOversized          Status = "oversized"
	StatusCheckingDuplicates Status = "checking-duplicates"
	StatusResolving          Status = "resolving"
	StatusSaving             Status = "saving"
	StatusComplete           Status = "complete"
	StatusError              Status = "error"
)

// Progress is the current/total counter of the running stage.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// Summary reports the totals of a finished import.
type Summary struct {
	RowsSeen         int           `json:"rowsSeen"`
	Parsed           int           `json:"parsed"`
	Normalized       int           `json:"normalized"`
	Failed           int           `json:"failed"`
	OversizedSkipped int           `json:"oversizedSkipped"`
	Unique           int           `json:"unique"`
	Duplicates       int           `json:"duplicates"`
	Merged           int           `json:"merged"`
	KeptBoth         int           `json:"keptBoth"`
	Skipped          int           `json:"skipped"`
	AutoSkipped      int           `json:"autoSkipped"`
	Saved            int           `json:"saved"`
	Errors           []string      `json:"errors,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// Resolution is a duplicate-resolution decision.
type Resolution string

const (
	ResolveMerge    Resolution = "merge"
	ResolveSkip     Resolution = "skip"
	ResolveKeepBoth Resolution = "keep-both"
	ResolveCancel   Resolution = "cancel"
	ResolveMergeAll Resolution = "merge-all"
	ResolveSkipAll  Resolution = "skip-all"
)

// ParseResolution validates a decision string.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case ResolveMerge, ResolveSkip, ResolveKeepBoth, ResolveCancel, ResolveMergeAll, ResolveSkipAll:
		return r, nil
	}
	return "", ErrInvalidDecision
}

// OversizedAction is the user's choice for records over the size ceiling.
type OversizedAction string

const (
	OversizedSkipAll      OversizedAction = "skip-all"
	OversizedSkipSelected OversizedAction = "skip-selected"
	OversizedContinue     OversizedAction = "continue"
)

// OversizedDecision carries the action and, for skip-selected, the Index
// values of the oversized records to drop.
type OversizedDecision struct {
	Action  OversizedAction `json:"action"`
	Indices []int           `json:"indices,omitempty"`
}

// MaxSurfacedErrors caps the error lists carried by events and views.
const MaxSurfacedErrors = 5

// EventType tags an import event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventStatus   EventType = "status"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Processed are the row totals of the processing or normalizing stage.
type Processed struct {
	Total      int `json:"total"`
	Normalized int `json:"normalized"`
	Failed     int `json:"failed"`
}

// Event is one message of an import's ordered event stream. Seq starts at
// 1 and increases by one per event.
type Event struct {
	Seq  int64     `json:"seq"`
	Type EventType `json:"type"`

	// progress
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
	Message string `json:"message,omitempty"`

	// status
	Status  Status       `json:"status,omitempty"`
	Session *SessionView `json:"session,omitempty"`

	// complete
	Processed *Processed `json:"processed,omitempty"`
	Contacts  []Contact  `json:"contacts,omitempty"`
	Errors    []string   `json:"errors,omitempty"`

	// error
	Code string `json:"code,omitempty"`
}

// SessionView is a read-only snapshot of an import session.
type SessionView struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	FileName    string             `json:"fileName"`
	Status      Status             `json:"status"`
	ParserType  ParserType         `json:"parserType,omitempty"`
	Detection   *Detection         `json:"detection,omitempty"`
	Progress    Progress           `json:"progress"`
	Current     *DuplicateMatch    `json:"current,omitempty"`
	Remaining   int                `json:"remaining"`
	Oversized   []OversizedContact `json:"oversized,omitempty"`
	AutoSkipped int                `json:"autoSkipped"`
	Errors      []string           `json:"errors,omitempty"`
	Error       *UserMessage       `json:"error,omitempty"`
	Summary     *Summary           `json:"summary,omitempty"`
	StartedAt   time.Time          `json:"startedAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// queuedMatch is a duplicate awaiting a decision; incoming indexes the
// session's resolved contacts.
type queuedMatch struct {
	DuplicateMatch
	incoming int
}

type decisionKind int

const (
	decideConfirm decisionKind = iota
	decideOversized
	decideResolve
)

type decision struct {
	kind       decisionKind
	resolution Resolution
	oversized  OversizedDecision
	reply      chan error
}

// session is the mutable state of one import. Only the session goroutine
// writes pipeline fields; readers take mu and receive copies.
type session struct {
	id       string
	userID   string
	fileName string
	file     *CSVFile
	cancel   context.CancelFunc

	decisions chan decision
	done      chan struct{} // closed when the goroutine exits

	mu          sync.Mutex
	status      Status
	detection   *Detection
	progress    Progress
	resolved    []Contact
	queue       []queuedMatch
	oversized   []OversizedContact
	errors      []string
	autoSkipped int
	failure     *UserMessage
	summary     *Summary
	startedAt   time.Time
	updatedAt   time.Time

	events  []Event
	changed chan struct{} // closed and replaced on every append
	closed  bool          // no more events will be appended
}

func newSession(id, userID, fileName string, file *CSVFile, cancel context.CancelFunc) *session {
	t := now()
	return &session{
		id:        id,
		userID:    userID,
		fileName:  fileName,
		file:      file,
		cancel:    cancel,
		decisions: make(chan decision, 1),
		done:      make(chan struct{}),
		status:    StatusIdle,
		startedAt: t,
		updatedAt: t,
		changed:   make(chan struct{}),
	}
}

// viewLocked builds a snapshot; s.mu must be held.
func (s *session) viewLocked() SessionView {
	v := SessionView{
		ID:          s.id,
		UserID:      s.userID,
		FileName:    s.fileName,
		Status:      s.status,
		Progress:    s.progress,
		Remaining:   len(s.queue),
		AutoSkipped: s.autoSkipped,
		Errors:      firstErrors(s.errors),
		Error:       s.failure,
		Summary:     s.summary,
		StartedAt:   s.startedAt,
		UpdatedAt:   s.updatedAt,
	}
	if s.detection != nil {
		d := *s.detection
		v.Detection = &d
		v.ParserType = d.ParserType
	}
	if len(s.queue) > 0 {
		m := s.queue[0].DuplicateMatch
		v.Current = &m
	}
	if len(s.oversized) > 0 {
		v.Oversized = append([]OversizedContact(nil), s.oversized...)
	}
	return v
}

func (s *session) view() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *session) getStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// emitLocked appends ev to the log and wakes subscribers; s.mu must be held.
func (s *session) emitLocked(ev Event) {
	if s.closed {
		return
	}
	ev.Seq = int64(len(s.events)) + 1
	s.events = append(s.events, ev)
	s.updatedAt = now()
	close(s.changed)
	s.changed = make(chan struct{})
}

// setStatus transitions the session and emits a status event. A decision
// queued for the previous state is rejected.
func (s *session) setStatus(st Status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectPendingLocked()
	s.status = st
	s.progress = Progress{Message: message}
	view := s.viewLocked()
	s.emitLocked(Event{Type: EventStatus, Status: st, Message: message, Session: &view})
}

// setProgress updates the counter and emits a progress event.
func (s *session) setProgress(current, total int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = Progress{Current: current, Total: total, Message: message}
	s.emitLocked(Event{Type: EventProgress, Current: current, Total: total, Message: message})
}

func (s *session) rejectPendingLocked() {
	for {
		select {
		case d := <-s.decisions:
			d.reply <- ErrInvalidDecision
		default:
			return
		}
	}
}

func (s *session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(ev)
}

// closeLog marks the end of the event stream.
func (s *session) closeLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.changed)
}

// eventsAfter returns logged events with Seq > after, the channel that
// signals the next append and whether the log is closed.
func (s *session) eventsAfter(after int64) ([]Event, <-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if after < 0 {
		after = 0
	}
	var out []Event
	if after < int64(len(s.events)) {
		out = append(out, s.events[after:]...)
	}
	return out, s.changed, s.closed
}

func (s *session) hasQueue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) > 0
}

func (s *session) head() (queuedMatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return queuedMatch{}, false
	}
	return s.queue[0], true
}

func (s *session) queueCopy() []queuedMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]queuedMatch(nil), s.queue...)
}

// popQueue removes and returns the first n queued matches, or all of them
// when n < 0.
func (s *session) popQueue(n int) []queuedMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n > len(s.queue) {
		n = len(s.queue)
	}
	popped := append([]queuedMatch(nil), s.queue[:n]...)
	s.queue = s.queue[n:]
	return popped
}

func (s *session) addError(msg string) {
	s.mu.Lock()
	s.errors = append(s.errors, msg)
	s.mu.Unlock()
}

func firstErrors(errs []string) []string {
	if len(errs) == 0 {
		return nil
	}
	n := min(len(errs), MaxSurfacedErrors)
	return append([]string(nil), errs[:n]...)
}
