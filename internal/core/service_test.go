package core_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/rolodex/internal/core"
	_ "github.com/JonMunkholm/rolodex/internal/core/formats"
	"github.com/JonMunkholm/rolodex/internal/store"
)

const rolodexFile = "Name,Emails,Phones,Company,Role\n" +
	"Ada Lovelace,ada@example.com,555-0100,Analytical,Engineer\n" +
	"Grace Hopper,grace@example.com,555-0101,Navy,Admiral\n"

func newService(t *testing.T, n core.Normalizer) (*core.Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := core.NewService(st, n, core.Options{})
	t.Cleanup(svc.CancelAll)
	return svc, st
}

func waitFor(t *testing.T, svc *core.Service, id string, done func(core.SessionView) bool) core.SessionView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		v, err := svc.Session(id)
		if err == nil && done(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for import %s (last status %q, err %v)", id, v.Status, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func inStatus(st core.Status) func(core.SessionView) bool {
	return func(v core.SessionView) bool { return v.Status == st }
}

func finished(v core.SessionView) bool {
	return v.Summary != nil || v.Status == core.StatusError
}

func start(t *testing.T, svc *core.Service, user, content string) string {
	t.Helper()
	id, err := svc.Start(context.Background(), user, "contacts.csv", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, svc, id, inStatus(core.StatusPreview))
	return id
}

func TestImportNewContacts(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()

	id := start(t, svc, "u1", rolodexFile)
	v, _ := svc.Session(id)
	if v.ParserType != core.ParserRolodex || v.Detection.RowCount != 2 {
		t.Fatalf("detection = %+v", v.Detection)
	}

	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	v = waitFor(t, svc, id, finished)
	if v.Summary == nil {
		t.Fatalf("import failed: %+v", v.Error)
	}
	if v.Summary.Saved != 2 || v.Summary.Parsed != 2 {
		t.Errorf("summary = %+v", v.Summary)
	}

	contacts, _ := st.List(ctx, "u1")
	if len(contacts) != 2 || contacts[0].Name != "Ada Lovelace" || contacts[0].ID == "" {
		t.Errorf("stored = %+v", contacts)
	}
	if n, _ := st.Count(ctx, "u2"); n != 0 {
		t.Errorf("other user sees %d contacts", n)
	}
}

func TestImportReimportAutoSkips(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()

	for run := range 2 {
		id := start(t, svc, "u1", rolodexFile)
		if err := svc.Confirm(ctx, id); err != nil {
			t.Fatalf("run %d Confirm: %v", run, err)
		}
		v := waitFor(t, svc, id, finished)
		if v.Summary == nil {
			t.Fatalf("run %d failed: %+v", run, v.Error)
		}
		if run == 1 && (v.Summary.AutoSkipped != 2 || v.Summary.Saved != 0) {
			t.Errorf("second run summary = %+v", v.Summary)
		}
		waitFor(t, svc, id, inStatus(core.StatusIdle))
		if err := svc.WaitForImports(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := st.Count(ctx, "u1"); n != 2 {
		t.Errorf("stored %d contacts, want 2", n)
	}
}

func seedAda(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	err := st.BulkPut(context.Background(), "u1", []core.Contact{{
		ID:          "ada",
		Name:        "Ada Lovelace",
		Company:     "Analytical",
		ContactInfo: core.ContactInfo{Emails: []string{"ada@example.com"}},
		Source:      core.SourceManual,
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func TestImportMergeDuplicate(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	seedAda(t, st)

	id := start(t, svc, "u1", rolodexFile)
	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatal(err)
	}

	v := waitFor(t, svc, id, inStatus(core.StatusResolving))
	if v.Current == nil || v.Current.Existing.ID != "ada" || v.Current.MatchType != core.MatchName {
		t.Fatalf("current = %+v", v.Current)
	}
	if v.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", v.Remaining)
	}

	if err := svc.Resolve(ctx, id, core.ResolveMerge); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v = waitFor(t, svc, id, finished)
	if v.Summary == nil {
		t.Fatalf("import failed: %+v", v.Error)
	}
	if v.Summary.Merged != 1 || v.Summary.Saved != 1 || v.Summary.Unique != 1 {
		t.Errorf("summary = %+v", v.Summary)
	}

	ada, err := st.Get(ctx, "u1", "ada")
	if err != nil {
		t.Fatal(err)
	}
	if ada.Role != "Engineer" || len(ada.ContactInfo.Phones) != 1 {
		t.Errorf("merged contact = %+v", ada)
	}
	if n, _ := st.Count(ctx, "u1"); n != 2 {
		t.Errorf("stored %d contacts, want 2", n)
	}
}

func TestConfirmReturnsWhileDecisionPending(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	seedAda(t, st)

	id := start(t, svc, "u1", rolodexFile)

	confirmed := make(chan error, 1)
	go func() { confirmed <- svc.Confirm(ctx, id) }()
	select {
	case err := <-confirmed:
		if err != nil {
			t.Fatalf("Confirm: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Confirm did not return while the import waits for a duplicate decision")
	}

	v := waitFor(t, svc, id, inStatus(core.StatusResolving))
	if v.Summary != nil {
		t.Errorf("import finished before resolution: %+v", v.Summary)
	}
	if err := svc.Resolve(ctx, id, core.ResolveSkip); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v := waitFor(t, svc, id, finished); v.Summary == nil || v.Summary.Skipped != 1 {
		t.Errorf("summary = %+v", v.Summary)
	}
}

// recordingStore notes the size of every BulkPut.
type recordingStore struct {
	*store.MemoryStore

	mu   sync.Mutex
	puts []int
}

func (s *recordingStore) BulkPut(ctx context.Context, userID string, contacts []core.Contact) error {
	s.mu.Lock()
	s.puts = append(s.puts, len(contacts))
	s.mu.Unlock()
	return s.MemoryStore.BulkPut(ctx, userID, contacts)
}

func (s *recordingStore) bulkPuts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.puts)
}

func TestImportMergeAll(t *testing.T) {
	mem := store.NewMemoryStore()
	seedAda(t, mem)
	st := &recordingStore{MemoryStore: mem}
	svc := core.NewService(st, nil, core.Options{MaxBatchRows: 2})
	t.Cleanup(svc.CancelAll)
	ctx := context.Background()

	file := "Name,Emails,Phones,Company,Role\n" +
		"Ada Lovelace,ada@example.com,555-0100,Analytical,Engineer\n" +
		"Ada Lovelace,ada@example.com,555-0101,Analytical,\n" +
		"Ada Lovelace,ADA@example.com,555-0102,Analytical,\n" +
		"A. Lovelace,ada@example.com,555-0103,Analytical,\n"

	id := start(t, svc, "u1", file)
	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatal(err)
	}
	v := waitFor(t, svc, id, inStatus(core.StatusResolving))
	if v.Remaining != 4 {
		t.Fatalf("Remaining = %d, want 4", v.Remaining)
	}
	if err := svc.Resolve(ctx, id, core.ResolveMergeAll); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	v = waitFor(t, svc, id, finished)
	if v.Summary == nil {
		t.Fatalf("import failed: %+v", v.Error)
	}
	if v.Summary.Merged != 4 || v.Summary.Saved != 0 {
		t.Errorf("summary = %+v", v.Summary)
	}
	if got := st.bulkPuts(); !slices.Equal(got, []int{1, 1}) {
		t.Errorf("BulkPut sizes = %v, want one folded contact per batch of two", got)
	}

	ada, err := st.Get(ctx, "u1", "ada")
	if err != nil {
		t.Fatal(err)
	}
	wantPhones := []string{"555-0100", "555-0101", "555-0102", "555-0103"}
	if !slices.Equal(ada.ContactInfo.Phones, wantPhones) {
		t.Errorf("Phones = %v, want %v", ada.ContactInfo.Phones, wantPhones)
	}
	if len(ada.ContactInfo.Emails) != 1 || ada.Role != "Engineer" || ada.Name != "Ada Lovelace" {
		t.Errorf("merged contact = %+v", ada)
	}
	if n, _ := st.Count(ctx, "u1"); n != 1 {
		t.Errorf("stored %d contacts, want 1", n)
	}
}

func TestImportSkipAll(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	seedAda(t, st)
	err := st.BulkPut(ctx, "u1", []core.Contact{{
		ID:          "grace",
		Name:        "Grace Hopper",
		ContactInfo: core.ContactInfo{Emails: []string{"grace@example.com"}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	id := start(t, svc, "u1", rolodexFile)
	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatal(err)
	}
	if v := waitFor(t, svc, id, inStatus(core.StatusResolving)); v.Remaining != 2 {
		t.Fatalf("Remaining = %d, want 2", v.Remaining)
	}
	if err := svc.Resolve(ctx, id, core.ResolveSkipAll); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	v := waitFor(t, svc, id, finished)
	if v.Summary == nil || v.Summary.Skipped != 2 || v.Summary.Merged != 0 || v.Summary.Saved != 0 {
		t.Fatalf("summary = %+v", v.Summary)
	}
	ada, _ := st.Get(ctx, "u1", "ada")
	if len(ada.ContactInfo.Phones) != 0 || ada.Role != "" {
		t.Errorf("skipped duplicate changed the stored contact: %+v", ada)
	}
	if n, _ := st.Count(ctx, "u1"); n != 2 {
		t.Errorf("stored %d contacts, want 2", n)
	}
}

func TestImportCancelDuringNormalization(t *testing.T) {
	const concurrency = 2

	var calls atomic.Int32
	started := make(chan struct{}, 64)
	norm := core.NormalizerFunc(func(ctx context.Context, row core.Row, _ []string) (core.Contact, error) {
		calls.Add(1)
		started <- struct{}{}
		<-ctx.Done()
		return core.Contact{}, ctx.Err()
	})
	st := store.NewMemoryStore()
	svc := core.NewService(st, norm, core.Options{Concurrency: concurrency})
	t.Cleanup(svc.CancelAll)
	ctx := context.Background()

	var b strings.Builder
	b.WriteString("Who,Where\n")
	for i := range 10 {
		fmt.Fprintf(&b, "Person %d,Somewhere\n", i)
	}

	id := start(t, svc, "u1", b.String())
	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatal(err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("normalization never started")
	}

	if err := svc.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	v := waitFor(t, svc, id, inStatus(core.StatusIdle))
	if v.Summary != nil || v.Error != nil {
		t.Errorf("cancelled import reported %+v / %+v", v.Summary, v.Error)
	}
	if err := svc.WaitForImports(ctx); err != nil {
		t.Fatal(err)
	}

	if n := calls.Load(); n > concurrency {
		t.Errorf("normalizer called %d times, want at most %d after cancel", n, concurrency)
	}
	if n, _ := st.Count(ctx, "u1"); n != 0 {
		t.Errorf("stored %d contacts after cancel, want 0", n)
	}
}

func TestImportKeepBoth(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	seedAda(t, st)

	id := start(t, svc, "u1", rolodexFile)
	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatal(err)
	}
	waitFor(t, svc, id, inStatus(core.StatusResolving))
	if err := svc.Resolve(ctx, id, core.ResolveKeepBoth); err != nil {
		t.Fatal(err)
	}

	v := waitFor(t, svc, id, finished)
	if v.Summary == nil || v.Summary.KeptBoth != 1 || v.Summary.Saved != 2 {
		t.Fatalf("summary = %+v", v.Summary)
	}
	if n, _ := st.Count(ctx, "u1"); n != 3 {
		t.Errorf("stored %d contacts, want 3", n)
	}
}

func TestImportResolveCancel(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	seedAda(t, st)

	id := start(t, svc, "u1", rolodexFile)
	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatal(err)
	}
	waitFor(t, svc, id, inStatus(core.StatusResolving))
	if err := svc.Resolve(ctx, id, core.ResolveCancel); err != nil {
		t.Fatal(err)
	}

	v := waitFor(t, svc, id, inStatus(core.StatusIdle))
	if v.Summary != nil || v.Error != nil {
		t.Errorf("cancelled import reported %+v / %+v", v.Summary, v.Error)
	}
	if n, _ := st.Count(ctx, "u1"); n != 1 {
		t.Errorf("stored %d contacts after cancel, want 1", n)
	}
}

func TestImportCancelAtPreview(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()

	id := start(t, svc, "u1", rolodexFile)
	if err := svc.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitFor(t, svc, id, inStatus(core.StatusIdle))

	if err := svc.Confirm(ctx, id); !errors.Is(err, core.ErrInvalidDecision) {
		t.Errorf("Confirm after cancel = %v, want ErrInvalidDecision", err)
	}
	if n, _ := st.Count(ctx, "u1"); n != 0 {
		t.Errorf("stored %d contacts, want 0", n)
	}
}

func TestImportDecisionOutOfState(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	id := start(t, svc, "u1", rolodexFile)
	if err := svc.Resolve(ctx, id, core.ResolveMerge); !errors.Is(err, core.ErrInvalidDecision) {
		t.Errorf("Resolve at preview = %v, want ErrInvalidDecision", err)
	}
	if err := svc.DecideOversized(ctx, id, core.OversizedDecision{Action: core.OversizedContinue}); !errors.Is(err, core.ErrInvalidDecision) {
		t.Errorf("DecideOversized at preview = %v, want ErrInvalidDecision", err)
	}
	if err := svc.Resolve(ctx, id, core.Resolution("explode")); !errors.Is(err, core.ErrInvalidDecision) {
		t.Errorf("unknown resolution = %v, want ErrInvalidDecision", err)
	}
	if _, err := svc.Session("missing"); !errors.Is(err, core.ErrImportNotFound) {
		t.Errorf("Session(missing) = %v, want ErrImportNotFound", err)
	}
}

func TestImportOnePerUser(t *testing.T) {
	svc, _ := newService(t, nil)
	start(t, svc, "u1", rolodexFile)

	_, err := svc.Start(context.Background(), "u1", "again.csv", strings.NewReader(rolodexFile))
	if !errors.Is(err, core.ErrImportInProgress) {
		t.Errorf("second Start = %v, want ErrImportInProgress", err)
	}
	start(t, svc, "u2", rolodexFile)
}

func TestImportParseErrorCreatesNoSession(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Start(context.Background(), "u1", "empty.csv", strings.NewReader(""))
	if !errors.Is(err, core.ErrParse) {
		t.Fatalf("Start = %v, want ErrParse", err)
	}
	if _, ok := svc.ActiveSession("u1"); ok {
		t.Error("parse failure left a session behind")
	}
}

func TestImportContactLimit(t *testing.T) {
	var calls atomic.Int32
	norm := core.NormalizerFunc(func(_ context.Context, row core.Row, _ []string) (core.Contact, error) {
		calls.Add(1)
		return core.Contact{Name: row["Who"]}, nil
	})
	svc, st := newService(t, norm)
	ctx := context.Background()

	existing := make([]core.Contact, 9960)
	for i := range existing {
		existing[i] = core.Contact{ID: fmt.Sprintf("c%d", i), Name: fmt.Sprintf("Existing %d", i)}
	}
	if err := st.BulkPut(ctx, "u1", existing); err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	b.WriteString("Who,Where\n")
	for i := range 10050 {
		fmt.Fprintf(&b, "Person %d,Somewhere\n", i)
	}

	id := start(t, svc, "u1", b.String())
	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatal(err)
	}
	v := waitFor(t, svc, id, finished)

	if v.Status != core.StatusError || v.Error == nil || v.Error.Code != "LIM001" {
		t.Fatalf("status %s error %+v, want LIM001", v.Status, v.Error)
	}
	if !strings.Contains(v.Error.Message, "(40 slots available)") {
		t.Errorf("message = %q", v.Error.Message)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("normalizer called %d times before the limit check", n)
	}
	if n, _ := st.Count(ctx, "u1"); n != 9960 {
		t.Errorf("stored %d contacts, want 9960", n)
	}
}

func TestImportAllRowsFailNormalization(t *testing.T) {
	norm := core.NormalizerFunc(func(context.Context, core.Row, []string) (core.Contact, error) {
		return core.Contact{}, errors.New("model refused")
	})
	svc, st := newService(t, norm)
	ctx := context.Background()

	var b strings.Builder
	b.WriteString("Who,Where\n")
	for i := range 25 {
		fmt.Fprintf(&b, "Person %d,Somewhere\n", i)
	}

	id := start(t, svc, "u1", b.String())
	if v, _ := svc.Session(id); v.ParserType != core.ParserCustom {
		t.Fatalf("ParserType = %s, want custom", v.ParserType)
	}
	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatal(err)
	}
	v := waitFor(t, svc, id, finished)

	if v.Status != core.StatusError || v.Error == nil || v.Error.Code != "NRM001" {
		t.Fatalf("status %s error %+v, want NRM001", v.Status, v.Error)
	}
	if len(v.Errors) != core.MaxSurfacedErrors {
		t.Errorf("surfaced %d row errors, want %d", len(v.Errors), core.MaxSurfacedErrors)
	}
	if n, _ := st.Count(ctx, "u1"); n != 0 {
		t.Errorf("stored %d contacts, want 0", n)
	}
}

func TestImportPartialNormalization(t *testing.T) {
	norm := core.NormalizerFunc(func(_ context.Context, row core.Row, _ []string) (core.Contact, error) {
		if row["Who"] == "bad" {
			return core.Contact{}, errors.New("unreadable")
		}
		return core.Contact{Name: row["Who"], Location: row["Where"]}, nil
	})
	svc, st := newService(t, norm)
	ctx := context.Background()

	id := start(t, svc, "u1", "Who,Where\nAda,London\nbad,x\nGrace,Arlington\n")
	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatal(err)
	}
	v := waitFor(t, svc, id, finished)
	if v.Summary == nil {
		t.Fatalf("import failed: %+v", v.Error)
	}
	if v.Summary.Normalized != 2 || v.Summary.Failed != 1 || v.Summary.Saved != 2 {
		t.Errorf("summary = %+v", v.Summary)
	}
	if len(v.Summary.Errors) != 1 || !strings.HasPrefix(v.Summary.Errors[0], "Row 2:") {
		t.Errorf("errors = %v", v.Summary.Errors)
	}

	contacts, _ := st.List(ctx, "u1")
	if len(contacts) != 2 || contacts[0].Name != "Ada" || contacts[1].Name != "Grace" {
		t.Errorf("stored = %+v", contacts)
	}
}

func TestImportNoNormalizer(t *testing.T) {
	svc, _ := newService(t, nil)
	id := start(t, svc, "u1", "Who,Where\nAda,London\n")
	if err := svc.Confirm(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	v := waitFor(t, svc, id, finished)
	if v.Status != core.StatusError || v.Error.Code != "NRM002" {
		t.Errorf("status %s error %+v, want NRM002", v.Status, v.Error)
	}
}

func TestImportOversized(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()

	notes := strings.Repeat("word ", 400)
	file := "Name,Emails,Company,Notes\n" +
		"Ada Lovelace,ada@example.com,Analytical," + notes + "\n" +
		"Grace Hopper,grace@example.com,Navy,short\n"

	id := start(t, svc, "u1", file)
	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatal(err)
	}
	v := waitFor(t, svc, id, inStatus(core.StatusOversized))
	if len(v.Oversized) != 1 || v.Oversized[0].Index != 0 || v.Oversized[0].TokenCount <= 500 {
		t.Fatalf("oversized = %+v", v.Oversized)
	}

	err := svc.DecideOversized(ctx, id, core.OversizedDecision{Action: core.OversizedSkipSelected, Indices: []int{1}})
	if !errors.Is(err, core.ErrInvalidDecision) {
		t.Errorf("selecting a normal contact = %v, want ErrInvalidDecision", err)
	}
	if err := svc.DecideOversized(ctx, id, core.OversizedDecision{Action: core.OversizedSkipAll}); err != nil {
		t.Fatalf("DecideOversized: %v", err)
	}

	v = waitFor(t, svc, id, finished)
	if v.Summary == nil || v.Summary.OversizedSkipped != 1 || v.Summary.Saved != 1 {
		t.Fatalf("summary = %+v", v.Summary)
	}
	contacts, _ := st.List(ctx, "u1")
	if len(contacts) != 1 || contacts[0].Name != "Grace Hopper" {
		t.Errorf("stored = %+v", contacts)
	}
}

func TestSubscribeOrderedEvents(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := start(t, svc, "u1", rolodexFile)
	events, err := svc.Subscribe(ctx, id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Confirm(ctx, id); err != nil {
		t.Fatal(err)
	}

	var seqs []int64
	var sawComplete bool
	var last core.Event
	for ev := range events {
		seqs = append(seqs, ev.Seq)
		if ev.Type == core.EventStatus && ev.Status == core.StatusComplete {
			sawComplete = ev.Session != nil && ev.Session.Summary != nil
		}
		last = ev
	}
	if ctx.Err() != nil {
		t.Fatal("event stream did not end")
	}

	for i, s := range seqs {
		if s != int64(i+1) {
			t.Fatalf("seq[%d] = %d, want %d", i, s, i+1)
		}
	}
	if !sawComplete {
		t.Error("no complete status event carrying the summary")
	}
	if last.Type != core.EventStatus || last.Status != core.StatusIdle {
		t.Errorf("last event = %+v, want idle status", last)
	}

	resumed, err := svc.Subscribe(ctx, id, int64(len(seqs)-1))
	if err != nil {
		t.Fatal(err)
	}
	var replay []core.Event
	for ev := range resumed {
		replay = append(replay, ev)
	}
	if len(replay) != 1 || replay[0].Seq != int64(len(seqs)) {
		t.Errorf("resumed stream = %+v, want only the final event", replay)
	}
}

func TestCapacityAndExport(t *testing.T) {
	svc, st := newService(t, nil)
	ctx := context.Background()
	seedAda(t, st)

	capacity, err := svc.Capacity(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if capacity.Count != 1 || capacity.Available != 9999 || capacity.Approaching {
		t.Errorf("capacity = %+v", capacity)
	}

	var b strings.Builder
	n, err := svc.ExportCSV(ctx, "u1", &b)
	if err != nil || n != 1 {
		t.Fatalf("ExportCSV = %d, %v", n, err)
	}
	f, err := core.ReadCSV(strings.NewReader(b.String()))
	if err != nil {
		t.Fatal(err)
	}
	if got := core.DetectFormat(f.Headers); got != core.ParserRolodex {
		t.Errorf("exported file detected as %s, want rolodex", got)
	}

	if err := svc.DeleteContact(ctx, "u1", "ada"); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteContact(ctx, "u1", "ada"); !errors.Is(err, core.ErrContactNotFound) {
		t.Errorf("second delete = %v, want ErrContactNotFound", err)
	}
}
