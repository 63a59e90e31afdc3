package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// importRun carries the working state of one session's pipeline.
type importRun struct {
	svc  *Service
	sess *session
	log  *slog.Logger

	sum   Summary
	index *DuplicateIndex
	// kept are incoming contacts the user chose to keep alongside an
	// existing record, keyed by their index in sess.resolved.
	kept map[int]bool
}

// run drives a session from detection to completion.
func (s *Service) run(ctx context.Context, sess *session, log *slog.Logger) {
	r := &importRun{svc: s, sess: sess, log: log, kept: make(map[int]bool)}
	start := now()

	err := r.pipeline(ctx)
	switch {
	case err == nil:
		r.sum.Duration = now().Sub(start)
		log.Info("import complete",
			"saved", r.sum.Saved,
			"merged", r.sum.Merged,
			"auto_skipped", r.sum.AutoSkipped,
			"duration_ms", r.sum.Duration.Milliseconds(),
		)
		sum := r.sum
		sess.mu.Lock()
		sess.summary = &sum
		sess.mu.Unlock()
		sess.setStatus(StatusComplete, completeMessage(sum))

		_ = sleep(ctx, s.opts.CompleteDelay)
		sess.setStatus(StatusIdle, "")

	case isCancel(err):
		log.Info("import cancelled", "status", sess.getStatus())
		sess.setStatus(StatusIdle, "Import cancelled")

	default:
		s.fail(sess, log, err)
	}
}

func (r *importRun) pipeline(ctx context.Context) error {
	sess, opts := r.sess, r.svc.opts

	sess.setStatus(StatusDetecting, "Detecting file format")
	det := Detect(sess.file)
	sess.mu.Lock()
	sess.detection = &det
	sess.mu.Unlock()
	r.log.Info("format detected", "parser", det.ParserType, "rows", det.RowCount)

	if err := sleep(ctx, opts.PreviewDelay); err != nil {
		return err
	}
	sess.setStatus(StatusPreview, fmt.Sprintf("Detected %s format with %d rows", det.ParserType, det.RowCount))

	d, err := r.await(ctx, decideConfirm)
	if err != nil {
		return err
	}
	d.reply <- nil

	count, err := r.svc.store.Count(ctx, sess.userID)
	if err != nil {
		return fmt.Errorf("count contacts: %w", err)
	}
	if err := opts.Limits.CheckCapacity(count, det.RowCount); err != nil {
		return err
	}

	r.sum.RowsSeen = det.RowCount

	var contacts []Contact
	if det.ParserType == ParserCustom {
		contacts, err = r.normalize(ctx, det.Headers)
	} else {
		contacts, err = r.parse(ctx, det.ParserType)
	}
	if err != nil {
		return err
	}

	contacts, err = r.checkOversized(ctx, contacts)
	if err != nil {
		return err
	}

	unique, err := r.checkDuplicates(ctx, contacts)
	if err != nil {
		return err
	}

	if sess.hasQueue() {
		if err := r.resolve(ctx); err != nil {
			return err
		}
	}

	toSave := unique
	for i := range contacts {
		if r.kept[i] {
			toSave = append(toSave, contacts[i])
		}
	}
	return r.save(ctx, toSave)
}

// await blocks until a decision of the wanted kind arrives. Decisions of
// another kind are rejected and waiting continues.
func (r *importRun) await(ctx context.Context, kind decisionKind) (decision, error) {
	for {
		select {
		case d := <-r.sess.decisions:
			if d.kind != kind {
				d.reply <- ErrInvalidDecision
				continue
			}
			return d, nil
		case <-ctx.Done():
			return decision{}, ctx.Err()
		}
	}
}

// parse runs a deterministic parser over every row in one pass.
func (r *importRun) parse(ctx context.Context, pt ParserType) ([]Contact, error) {
	def, ok := Format(pt)
	if !ok {
		return nil, fmt.Errorf("parser %s is not registered", pt)
	}

	rows := r.sess.file.Rows
	r.sess.setStatus(StatusProcessing, "Reading "+def.Label)

	contacts := make([]Contact, 0, len(rows))
	dropped := 0
	for i, row := range rows {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r.sess.setProgress(i, len(rows), "Processing contacts")
		}
		c, ok := def.Parse(row, i+1)
		if !ok || !c.Clean() {
			dropped++
			continue
		}
		if c.Source == "" {
			c.Source = def.Source
		}
		contacts = append(contacts, c)
	}
	r.sess.setProgress(len(rows), len(rows), "Processing contacts")

	r.sum.Parsed = len(contacts)
	r.sum.Failed = dropped
	r.complete(len(rows), len(contacts), dropped, contacts)
	return contacts, nil
}

// normalize sends every row through the Normalizer in token-bounded
// batches. Calls within a batch run concurrently up to opts.Concurrency;
// results keep submission order. A failed row is recorded and skipped;
// if every row fails the import fails.
func (r *importRun) normalize(ctx context.Context, headers []string) ([]Contact, error) {
	if r.svc.normalizer == nil {
		return nil, errors.New("normalizer unavailable for unrecognized format")
	}

	opts := r.svc.opts
	rows := r.sess.file.Rows
	r.sess.setStatus(StatusNormalizing, "Normalizing contacts")

	budget := BudgetFor(OpBatch)
	positions := make([]int, len(rows))
	for i := range positions {
		positions[i] = i
	}
	batches := BatchByTokens(positions, BatchOptions{
		Budget:       budget.MaxInputTokens,
		BaseTokens:   budget.BaseTokens,
		SafetyMargin: DefaultSafetyMargin,
		MaxItems:     opts.MaxBatchRows,
	}, func(i int) string { return rowText(rows[i]) })

	r.log.Debug("normalizing", "rows", len(rows), "batches", len(batches))

	results := make([]*Contact, len(rows))
	rowErrs := make(map[int]string)
	var mu sync.Mutex
	resolved := 0

	for bi, batch := range batches {
		if bi > 0 {
			if err := sleep(ctx, opts.BatchDelay); err != nil {
				return nil, err
			}
		}

		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for _, i := range batch {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				c, err := r.svc.normalizer.Normalize(ctx, rows[i], headers)
				if err == nil && !c.Clean() {
					err = errors.New("no name or contact information")
				}

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					rowErrs[i] = RowError(i+1, err)
				} else {
					c.ID = ""
					if c.Source == "" {
						c.Source = SourceManual
					}
					results[i] = &c
				}
				resolved++
				r.sess.setProgress(resolved, len(rows), "Normalizing contacts")
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	failed := make([]int, 0, len(rowErrs))
	for i := range rowErrs {
		failed = append(failed, i)
	}
	sort.Ints(failed)
	for _, i := range failed {
		r.sess.addError(rowErrs[i])
		r.sum.Errors = append(r.sum.Errors, rowErrs[i])
	}

	contacts := make([]Contact, 0, len(rows))
	for _, c := range results {
		if c != nil {
			contacts = append(contacts, *c)
		}
	}

	if len(contacts) == 0 {
		return nil, &NormalizationError{Rows: len(rows), Errors: firstErrors(r.sum.Errors)}
	}

	r.sum.Normalized = len(contacts)
	r.sum.Failed = len(failed)
	r.complete(len(rows), len(contacts), len(failed), contacts)
	return contacts, nil
}

// complete emits the end-of-stage event for processing or normalizing.
func (r *importRun) complete(total, ok, failed int, contacts []Contact) {
	r.sess.emit(Event{
		Type:      EventComplete,
		Processed: &Processed{Total: total, Normalized: ok, Failed: failed},
		Contacts:  contacts,
		Errors:    firstErrors(r.sum.Errors),
	})
}

// checkOversized holds the pipeline for a user decision when any contact
// exceeds the per-record token ceiling.
func (r *importRun) checkOversized(ctx context.Context, contacts []Contact) ([]Contact, error) {
	var oversized []OversizedContact
	for i, c := range contacts {
		if over, tokens := r.svc.opts.Limits.IsOversized(c); over {
			oversized = append(oversized, OversizedContact{Contact: c, TokenCount: tokens, Index: i})
		}
	}
	if len(oversized) == 0 {
		return contacts, nil
	}

	r.sess.mu.Lock()
	r.sess.oversized = oversized
	r.sess.mu.Unlock()
	r.sess.setStatus(StatusOversized,
		fmt.Sprintf("%d contacts exceed %d tokens", len(oversized), r.svc.opts.Limits.MaxRecordTokens))

	for {
		d, err := r.await(ctx, decideOversized)
		if err != nil {
			return nil, err
		}

		drop, err := selectOversized(oversized, d.oversized)
		d.reply <- err
		if err != nil {
			continue
		}

		r.sess.mu.Lock()
		r.sess.oversized = nil
		r.sess.mu.Unlock()

		if len(drop) == 0 {
			return contacts, nil
		}
		kept := make([]Contact, 0, len(contacts)-len(drop))
		for i, c := range contacts {
			if !drop[i] {
				kept = append(kept, c)
			}
		}
		r.sum.OversizedSkipped = len(drop)
		r.log.Info("oversized contacts skipped", "count", len(drop))
		return kept, nil
	}
}

func selectOversized(oversized []OversizedContact, d OversizedDecision) (map[int]bool, error) {
	drop := make(map[int]bool)
	switch d.Action {
	case OversizedContinue:
	case OversizedSkipAll:
		for _, o := range oversized {
			drop[o.Index] = true
		}
	case OversizedSkipSelected:
		allowed := make(map[int]bool, len(oversized))
		for _, o := range oversized {
			allowed[o.Index] = true
		}
		for _, i := range d.Indices {
			if !allowed[i] {
				return nil, fmt.Errorf("%w: index %d is not an oversized contact", ErrInvalidDecision, i)
			}
			drop[i] = true
		}
	default:
		return nil, fmt.Errorf("%w: oversized action %q", ErrInvalidDecision, d.Action)
	}
	return drop, nil
}

// checkDuplicates compares every contact with the user's stored contacts.
// Matches that would add no information are dropped without asking; the
// rest are queued for resolution. Returns the contacts with no match.
func (r *importRun) checkDuplicates(ctx context.Context, contacts []Contact) ([]Contact, error) {
	sess := r.sess
	sess.setStatus(StatusCheckingDuplicates, "Checking for duplicates")

	existing, err := r.svc.store.List(ctx, sess.userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	r.index = NewDuplicateIndex(existing)

	var unique []Contact
	var queue []queuedMatch
	autoSkipped := 0

	for i, c := range contacts {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			sess.setProgress(i, len(contacts), "Checking for duplicates")
		}

		matches := r.index.Find(c)
		if len(matches) == 0 {
			unique = append(unique, c)
			continue
		}

		covered := false
		for _, m := range matches {
			if AreContactsIdentical(m.Existing, c) || HasLessOrEqualInformation(m.Existing, c) {
				covered = true
				break
			}
		}
		if covered {
			autoSkipped++
			continue
		}
		for _, m := range matches {
			queue = append(queue, queuedMatch{DuplicateMatch: m, incoming: i})
		}
	}
	sess.setProgress(len(contacts), len(contacts), "Checking for duplicates")

	sess.mu.Lock()
	sess.resolved = contacts
	sess.queue = queue
	sess.autoSkipped = autoSkipped
	sess.mu.Unlock()

	r.sum.Unique = len(unique)
	r.sum.AutoSkipped = autoSkipped
	r.sum.Duplicates = len(queue)
	r.log.Info("duplicates checked",
		"unique", len(unique),
		"queued", len(queue),
		"auto_skipped", autoSkipped,
	)
	return unique, nil
}

// resolve works through the duplicate queue one decision at a time.
func (r *importRun) resolve(ctx context.Context) error {
	sess := r.sess
	sess.setStatus(StatusResolving, "Review duplicates")

	for sess.hasQueue() {
		d, err := r.await(ctx, decideResolve)
		if err != nil {
			return err
		}
		d.reply <- nil

		switch d.resolution {
		case ResolveCancel:
			return ErrResolutionCancelled

		case ResolveSkip:
			sess.popQueue(1)
			r.sum.Skipped++

		case ResolveSkipAll:
			r.sum.Skipped += len(sess.popQueue(-1))

		case ResolveKeepBoth:
			for _, m := range sess.popQueue(1) {
				if !r.kept[m.incoming] {
					r.kept[m.incoming] = true
					r.sum.KeptBoth++
				}
			}

		case ResolveMerge:
			head, _ := sess.head()
			if err := r.mergeOne(ctx, head); err != nil {
				return err
			}
			sess.popQueue(1)
			r.sum.Merged++

		case ResolveMergeAll:
			if err := r.mergeAll(ctx); err != nil {
				return err
			}
		}

		if sess.hasQueue() {
			view := sess.view()
			sess.emit(Event{Type: EventStatus, Status: StatusResolving, Session: &view})
		}
	}
	return nil
}

// latest returns the current version of an existing contact, honouring
// merges made earlier in this import.
func (r *importRun) latest(m DuplicateMatch) Contact {
	if c, ok := r.index.Get(m.Existing.ID); ok {
		return c
	}
	return m.Existing
}

func (r *importRun) mergeOne(ctx context.Context, m queuedMatch) error {
	merged := MergeContacts(r.latest(m.DuplicateMatch), m.Incoming)
	if err := r.svc.store.BulkPut(ctx, r.sess.userID, []Contact{merged}); err != nil {
		return &PersistenceError{Op: "merge contact", Saved: r.sum.Merged, Err: err}
	}
	r.index.Add(merged)
	return nil
}

// mergeAll merges the remaining queue using the same batching and worker
// pool as normalization. Matches against one existing contact fold into
// it in queue order; each batch is written with a single BulkPut.
func (r *importRun) mergeAll(ctx context.Context) error {
	opts := r.svc.opts
	pending := r.sess.queueCopy()
	total := len(pending)

	budget := BudgetFor(OpBatch)
	batches := BatchByTokens(pending, BatchOptions{
		Budget:       budget.MaxInputTokens,
		BaseTokens:   budget.BaseTokens,
		SafetyMargin: DefaultSafetyMargin,
		MaxItems:     opts.MaxBatchRows,
	}, pairText)

	var mu sync.Mutex
	done := 0

	for bi, batch := range batches {
		if bi > 0 {
			if err := sleep(ctx, opts.BatchDelay); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		groups := groupByExisting(batch)
		results := make([]Contact, len(groups))

		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for gi, grp := range groups {
			base := r.latest(grp[0].DuplicateMatch)
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				c := base
				for _, m := range grp {
					c = MergeContacts(c, m.Incoming)
				}
				results[gi] = c

				mu.Lock()
				done += len(grp)
				r.sess.setProgress(done, total, "Merging duplicates")
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if err := r.svc.store.BulkPut(ctx, r.sess.userID, results); err != nil {
			return &PersistenceError{Op: "merge contacts", Saved: r.sum.Merged, Err: err}
		}
		for _, c := range results {
			r.index.Add(c)
		}
		r.sess.popQueue(len(batch))
		r.sum.Merged += len(batch)
	}
	return nil
}

func groupByExisting(batch []queuedMatch) [][]queuedMatch {
	var groups [][]queuedMatch
	pos := make(map[string]int)
	for _, m := range batch {
		key := m.Existing.ID
		if i, ok := pos[key]; ok && key != "" {
			groups[i] = append(groups[i], m)
			continue
		}
		pos[key] = len(groups)
		groups = append(groups, []queuedMatch{m})
	}
	return groups
}

// save writes new contacts in batches after re-checking capacity.
func (r *importRun) save(ctx context.Context, contacts []Contact) error {
	sess, opts := r.sess, r.svc.opts
	sess.setStatus(StatusSaving, fmt.Sprintf("Saving %d contacts", len(contacts)))

	count, err := r.svc.store.Count(ctx, sess.userID)
	if err != nil {
		return fmt.Errorf("count contacts: %w", err)
	}
	if err := opts.Limits.CheckCapacity(count, len(contacts)); err != nil {
		return err
	}

	t := now()
	for i := range contacts {
		contacts[i].ID = opts.NewID()
		contacts[i].CreatedAt = t
		contacts[i].UpdatedAt = t
	}

	for start := 0; start < len(contacts); start += opts.SaveBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+opts.SaveBatchSize, len(contacts))
		if err := r.svc.store.BulkPut(ctx, sess.userID, contacts[start:end]); err != nil {
			return &PersistenceError{Op: "save contacts", Saved: r.sum.Saved, Err: err}
		}
		r.sum.Saved = end
		sess.setProgress(end, len(contacts), "Saving contacts")
	}
	return nil
}

func completeMessage(s Summary) string {
	return fmt.Sprintf("Imported %d contacts, merged %d, skipped %d", s.Saved, s.Merged, s.Skipped+s.AutoSkipped)
}

func rowText(row Row) string {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Sprint(row)
	}
	return string(data)
}

func pairText(m queuedMatch) string {
	data, err := json.Marshal([2]Contact{m.Existing, m.Incoming})
	if err != nil {
		return m.Existing.Name + m.Incoming.Name
	}
	return string(data)
}
