package tasks

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestManagerAddRejectsBlankText(t *testing.T) {
	m := NewManager(Config{})
	for _, text := range []string{"", "   ", "\t\n"} {
		if _, ok := m.Add(text); ok {
			t.Fatalf("Add(%q) ok = true, want false", text)
		}
	}
	if got := m.Filter(FilterAll); len(got) != 0 {
		t.Fatalf("Filter(all) len = %d, want 0", len(got))
	}
	if v := m.Snapshot().Version; v != 0 {
		t.Fatalf("version = %d, want 0 after no-ops", v)
	}
}

func TestManagerAddTrimsAndAppends(t *testing.T) {
	m := NewManager(Config{})
	task, ok := m.Add("  Buy milk  ")
	if !ok {
		t.Fatalf("Add() ok = false, want true")
	}
	if task.ID == "" {
		t.Fatalf("Add() returned empty id")
	}

	all := m.Filter(FilterAll)
	if len(all) != 1 {
		t.Fatalf("Filter(all) len = %d, want 1", len(all))
	}
	if all[0].Text != "Buy milk" || all[0].Completed {
		t.Fatalf("Filter(all)[0] = %+v, want text %q completed=false", all[0], "Buy milk")
	}
}

func TestManagerIDsAreUnique(t *testing.T) {
	m := NewManager(Config{})
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		task, _ := m.Add("same text")
		if seen[task.ID] {
			t.Fatalf("duplicate id %q after %d adds", task.ID, i)
		}
		seen[task.ID] = true
	}
}

func TestManagerDoubleToggleRestores(t *testing.T) {
	m := NewManager(Config{})
	task, _ := m.Add("A")

	first, ok := m.Toggle(task.ID)
	if !ok || !first.Completed {
		t.Fatalf("Toggle() = %+v, %v, want completed", first, ok)
	}
	second, ok := m.Toggle(task.ID)
	if !ok || second.Completed {
		t.Fatalf("second Toggle() = %+v, %v, want not completed", second, ok)
	}
	got, err := m.Get(task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Completed != task.Completed {
		t.Fatalf("completed = %v, want %v", got.Completed, task.Completed)
	}
}

func TestManagerUnknownIDIsNoop(t *testing.T) {
	m := NewManager(Config{})
	m.Add("A")
	m.Add("B")
	before := m.Snapshot()

	if _, ok := m.Toggle("missing"); ok {
		t.Fatalf("Toggle(missing) ok = true")
	}
	if m.Delete("missing") {
		t.Fatalf("Delete(missing) = true")
	}
	if m.Delete("") {
		t.Fatalf("Delete(\"\") = true")
	}

	after := m.Snapshot()
	if after.Version != before.Version {
		t.Fatalf("version = %d, want %d", after.Version, before.Version)
	}
	if len(after.Tasks) != len(before.Tasks) {
		t.Fatalf("len = %d, want %d", len(after.Tasks), len(before.Tasks))
	}
	for i := range before.Tasks {
		if after.Tasks[i] != before.Tasks[i] {
			t.Fatalf("task %d = %+v, want %+v", i, after.Tasks[i], before.Tasks[i])
		}
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrTaskNotFound", err)
	}
}

func TestManagerDeletePreservesOrder(t *testing.T) {
	m := NewManager(Config{})
	a, _ := m.Add("A")
	b, _ := m.Add("B")
	c, _ := m.Add("C")

	if !m.Delete(b.ID) {
		t.Fatalf("Delete(b) = false")
	}
	got := m.Filter(FilterAll)
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != c.ID {
		t.Fatalf("Filter(all) = %+v, want [A C]", got)
	}
}

func TestManagerFilterPartitionsAll(t *testing.T) {
	m := NewManager(Config{})
	ids := make([]string, 0, 6)
	for _, text := range []string{"a", "b", "c", "d", "e", "f"} {
		task, _ := m.Add(text)
		ids = append(ids, task.ID)
	}
	m.Toggle(ids[1])
	m.Toggle(ids[4])
	m.Toggle(ids[5])

	all := m.Filter(FilterAll)
	active := m.Filter(FilterActive)
	completed := m.Filter(FilterCompleted)
	if len(active)+len(completed) != len(all) {
		t.Fatalf("active(%d) + completed(%d) != all(%d)", len(active), len(completed), len(all))
	}

	union := make(map[string]bool)
	for _, task := range active {
		if task.Completed {
			t.Fatalf("active view contains completed task %+v", task)
		}
		union[task.ID] = true
	}
	for _, task := range completed {
		if !task.Completed {
			t.Fatalf("completed view contains active task %+v", task)
		}
		union[task.ID] = true
	}
	for _, task := range all {
		if !union[task.ID] {
			t.Fatalf("task %q missing from active ∪ completed", task.ID)
		}
	}

	// Views keep insertion order.
	wantCompleted := []string{ids[1], ids[4], ids[5]}
	for i, task := range completed {
		if task.ID != wantCompleted[i] {
			t.Fatalf("completed[%d] = %q, want %q", i, task.ID, wantCompleted[i])
		}
	}
}

func TestManagerFilterReturnsCopies(t *testing.T) {
	m := NewManager(Config{})
	m.Add("A")
	got := m.Filter(FilterAll)
	got[0].Text = "mutated"
	if m.Filter(FilterAll)[0].Text != "A" {
		t.Fatalf("Filter() result aliases internal state")
	}
}

func TestManagerEndToEnd(t *testing.T) {
	m := NewManager(Config{})
	m.Load(context.Background())

	a, _ := m.Add("A")
	m.Add("B")
	m.Toggle(a.ID)

	c := m.Counts()
	if c.Total != 2 || c.Completed != 1 || c.Active != 1 {
		t.Fatalf("Counts() = %+v, want total=2 completed=1 active=1", c)
	}
	active := m.Filter(FilterActive)
	if len(active) != 1 || active[0].Text != "B" {
		t.Fatalf("Filter(active) = %+v, want [B]", active)
	}
}

func TestManagerClearCompleted(t *testing.T) {
	m := NewManager(Config{})
	a, _ := m.Add("A")
	m.Add("B")
	c, _ := m.Add("C")
	m.Toggle(a.ID)
	m.Toggle(c.ID)

	if n := m.ClearCompleted(); n != 2 {
		t.Fatalf("ClearCompleted() = %d, want 2", n)
	}
	version := m.Snapshot().Version
	if n := m.ClearCompleted(); n != 0 {
		t.Fatalf("second ClearCompleted() = %d, want 0", n)
	}
	if m.Snapshot().Version != version {
		t.Fatalf("ClearCompleted() with nothing to clear bumped version")
	}
	all := m.Filter(FilterAll)
	if len(all) != 1 || all[0].Text != "B" {
		t.Fatalf("Filter(all) = %+v, want [B]", all)
	}
}

func TestManagerPersistsEveryMutation(t *testing.T) {
	store := NewInMemoryStore("")
	m := NewManager(Config{})
	m.SetStore(store)
	defer m.Close(context.Background())
	m.Load(context.Background())

	a, _ := m.Add("A")
	m.Add("B")
	m.Toggle(a.ID)

	flush(t, m)
	saved, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	assertSameTasks(t, saved, m.Filter(FilterAll))
	if got, want := m.PersistedVersion(), m.Snapshot().Version; got != want {
		t.Fatalf("PersistedVersion() = %d, want %d", got, want)
	}

	m.Delete(a.ID)
	flush(t, m)
	saved, _ = store.Load(context.Background())
	if len(saved) != 1 || saved[0].Text != "B" {
		t.Fatalf("stored list = %+v, want [B]", saved)
	}
}

func TestManagerNoopDoesNotSave(t *testing.T) {
	store := NewInMemoryStore("")
	m := NewManager(Config{})
	m.SetStore(store)
	defer m.Close(context.Background())
	m.Load(context.Background())

	m.Add("  ")
	m.Toggle("missing")
	m.Delete("missing")
	flush(t, m)
	if n := store.SaveCount(); n != 0 {
		t.Fatalf("SaveCount() = %d, want 0", n)
	}
}

func TestManagerRehydratesFromStore(t *testing.T) {
	store := NewInMemoryStore("")
	first := NewManager(Config{})
	first.SetStore(store)
	first.Load(context.Background())
	a, _ := first.Add("A")
	first.Add("B")
	first.Toggle(a.ID)
	if err := first.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second := NewManager(Config{})
	second.SetStore(store)
	defer second.Close(context.Background())
	if n := second.Load(context.Background()); n != 2 {
		t.Fatalf("Load() = %d, want 2", n)
	}
	assertSameTasks(t, second.Filter(FilterAll), first.Filter(FilterAll))

	// Second Load is a no-op.
	second.Add("C")
	if n := second.Load(context.Background()); n != 3 {
		t.Fatalf("second Load() = %d, want 3", n)
	}
}

func TestManagerLoadFailureStartsEmpty(t *testing.T) {
	var logs bytes.Buffer
	store := &failingStore{loadErr: errors.New("disk on fire")}
	m := NewManager(Config{})
	m.SetLogger(log.New(&logs, "", 0))
	m.SetStore(store)
	defer m.Close(context.Background())

	if n := m.Load(context.Background()); n != 0 {
		t.Fatalf("Load() = %d, want 0", n)
	}
	if !strings.Contains(logs.String(), "disk on fire") {
		t.Fatalf("load failure not logged: %q", logs.String())
	}
}

func TestManagerLoadDropsInvalidRecords(t *testing.T) {
	store := NewInMemoryStore("")
	_ = store.Save(context.Background(), []Task{
		{ID: "1", Text: "keep"},
		{ID: "2", Text: "   "},
		{ID: "1", Text: "duplicate id"},
		{ID: "", Text: "needs id"},
	})
	m := NewManager(Config{})
	m.SetLogger(log.New(&bytes.Buffer{}, "", 0))
	m.SetStore(store)
	defer m.Close(context.Background())

	if n := m.Load(context.Background()); n != 2 {
		t.Fatalf("Load() = %d, want 2", n)
	}
	got := m.Filter(FilterAll)
	if got[0].ID != "1" || got[0].Text != "keep" {
		t.Fatalf("got[0] = %+v", got[0])
	}
	if got[1].ID == "" || got[1].Text != "needs id" {
		t.Fatalf("got[1] = %+v, want generated id", got[1])
	}
}

func TestManagerSaveFailureIsSwallowed(t *testing.T) {
	var logs bytes.Buffer
	var (
		mu      sync.Mutex
		results []string
	)
	store := &failingStore{saveErr: errors.New("quota exceeded")}
	m := NewManager(Config{})
	m.SetLogger(log.New(&logs, "", 0))
	m.SetPersistHook(func(op string, err error, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			results = append(results, op+":error")
			return
		}
		results = append(results, op+":ok")
	})
	m.SetStore(store)
	defer m.Close(context.Background())
	m.Load(context.Background())

	task, ok := m.Add("A")
	if !ok {
		t.Fatalf("Add() ok = false")
	}
	flush(t, m)

	got, err := m.Get(task.ID)
	if err != nil || got.Text != "A" {
		t.Fatalf("Get() = %+v, %v, want in-memory task kept", got, err)
	}
	if !strings.Contains(logs.String(), "quota exceeded") {
		t.Fatalf("save failure not logged: %q", logs.String())
	}
	if m.PersistedVersion() != 0 {
		t.Fatalf("PersistedVersion() = %d, want 0", m.PersistedVersion())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 2 || results[0] != "load:ok" || results[1] != "save:error" {
		t.Fatalf("hook results = %v, want [load:ok save:error]", results)
	}
}

func TestManagerSavesCoalesceAndLastWins(t *testing.T) {
	store := newSlowStore()
	m := NewManager(Config{})
	m.SetStore(store)
	defer m.Close(context.Background())
	m.Load(context.Background())

	m.Add("first")
	<-store.started // writer is now blocked inside Save
	for i := 0; i < 20; i++ {
		m.Add("more")
	}
	close(store.release)
	flush(t, m)

	versions := store.versions()
	if len(versions) > 3 {
		t.Fatalf("save count = %d, want coalesced writes (<= 3)", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("versions not increasing: %v", versions)
		}
	}
	last := store.lastList()
	if len(last) != 21 {
		t.Fatalf("last saved len = %d, want 21", len(last))
	}
}

func TestManagerSubscribe(t *testing.T) {
	m := NewManager(Config{})
	updates, unsubscribe := m.Subscribe()

	initial := receive(t, updates)
	if len(initial.Tasks) != 0 {
		t.Fatalf("initial snapshot tasks = %d, want 0", len(initial.Tasks))
	}

	task, _ := m.Add("A")
	snap := receive(t, updates)
	if len(snap.Tasks) != 1 || snap.Tasks[0].ID != task.ID {
		t.Fatalf("snapshot after add = %+v", snap)
	}
	if snap.Version <= initial.Version {
		t.Fatalf("version did not increase: %d -> %d", initial.Version, snap.Version)
	}

	m.Toggle("missing")
	select {
	case extra := <-updates:
		t.Fatalf("no-op published snapshot %+v", extra)
	default:
	}

	m.Toggle(task.ID)
	snap = receive(t, updates)
	if snap.Counts.Completed != 1 {
		t.Fatalf("counts after toggle = %+v", snap.Counts)
	}

	unsubscribe()
	if _, ok := <-updates; ok {
		t.Fatalf("channel still open after unsubscribe")
	}
	if n := m.SubscriberCount(); n != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", n)
	}
	unsubscribe()
}

func TestManagerSlowSubscriberKeepsLatest(t *testing.T) {
	m := NewManager(Config{SubscriberBuffer: 2})
	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	for i := 0; i < 10; i++ {
		m.Add("x")
	}

	var last Snapshot
	for {
		select {
		case snap := <-updates:
			last = snap
			continue
		default:
		}
		break
	}
	if len(last.Tasks) != 10 {
		t.Fatalf("latest buffered snapshot has %d tasks, want 10", len(last.Tasks))
	}
}

func flush(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed")
		}
		return snap
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func assertSameTasks(t *testing.T, got, want []Task) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%+v vs %+v)", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("task %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

type failingStore struct {
	loadErr error
	saveErr error
}

func (s *failingStore) Save(context.Context, []Task) error { return s.saveErr }

func (s *failingStore) Load(context.Context) ([]Task, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return nil, ErrNoData
}

func (s *failingStore) Name() string { return "failing" }

func (s *failingStore) Close() error { return nil }

// slowStore blocks its first Save until release is closed.
type slowStore struct {
	mu      sync.Mutex
	saved   [][]Task
	vers    []uint64
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newSlowStore() *slowStore {
	return &slowStore{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *slowStore) SaveVersion(_ context.Context, version uint64, list []Task) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, cloneTasks(list))
	s.vers = append(s.vers, version)
	return nil
}

func (s *slowStore) LoadVersion(context.Context) ([]Task, uint64, error) {
	return nil, 0, ErrNoData
}

func (s *slowStore) Save(ctx context.Context, list []Task) error {
	return s.SaveVersion(ctx, 0, list)
}

func (s *slowStore) Load(context.Context) ([]Task, error) { return nil, ErrNoData }

func (s *slowStore) Name() string { return "slow" }

func (s *slowStore) Close() error { return nil }

func (s *slowStore) versions() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.vers...)
}

func (s *slowStore) lastList() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return nil
	}
	return s.saved[len(s.saved)-1]
}
