package tasks

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrTaskNotFound = errors.New("task not found")

const (
	defaultSaveTimeout      = 2 * time.Second
	defaultLoadTimeout      = 5 * time.Second
	defaultSubscriberBuffer = 16
)

type Config struct {
	SaveTimeout      time.Duration
	LoadTimeout      time.Duration
	SubscriberBuffer int
}

// Manager owns the ordered task list. Insertion order is the display order for
// every filtered view. All operations are total: unknown ids and blank text are
// no-ops. Each effective mutation bumps the version, notifies subscribers and
// schedules a save of the whole list.
type Manager struct {
	mu sync.RWMutex

	list    []Task
	version uint64
	loaded  bool

	store       Store
	queue       *saveQueue
	saveTimeout time.Duration
	loadTimeout time.Duration
	logger      *log.Logger
	hook        PersistHook

	subscribers map[int]chan Snapshot
	nextSubID   int
	subBuffer   int
}

func NewManager(cfg Config) *Manager {
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = defaultSaveTimeout
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}
	return &Manager{
		list:        []Task{},
		saveTimeout: cfg.SaveTimeout,
		loadTimeout: cfg.LoadTimeout,
		logger:      log.Default(),
		subscribers: make(map[int]chan Snapshot),
		subBuffer:   cfg.SubscriberBuffer,
	}
}

func (m *Manager) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// SetPersistHook installs hook for store calls. Call it before SetStore.
func (m *Manager) SetPersistHook(hook PersistHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// SetStore attaches the persistence backend and starts its writer. Call it
// before Load and before serving; a previously attached writer is drained first.
func (m *Manager) SetStore(store Store) {
	m.mu.Lock()
	old := m.queue
	m.store = store
	m.queue = nil
	if store != nil {
		m.queue = newSaveQueue(store, m.saveTimeout, m.logger, m.hook)
	}
	m.mu.Unlock()

	if old != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.saveTimeout)
		defer cancel()
		_ = old.close(ctx)
	}
}

func (m *Manager) StoreName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.store == nil {
		return "none"
	}
	return m.store.Name()
}

// Load rehydrates the list from the store once. A missing value or a failing
// store leaves the list empty; failures are logged, never returned. Later calls
// are no-ops. It returns the number of tasks now held.
func (m *Manager) Load(ctx context.Context) int {
	m.mu.RLock()
	store := m.store
	loaded := m.loaded
	hook := m.hook
	logger := m.logger
	m.mu.RUnlock()
	if loaded {
		return len(m.Filter(FilterAll))
	}

	var (
		list          []Task
		storedVersion uint64
	)
	if store != nil {
		loadCtx, cancel := context.WithTimeout(ctx, m.loadTimeout)
		started := time.Now()
		var (
			stored []Task
			err    error
		)
		if vs, ok := store.(versionedStore); ok {
			stored, storedVersion, err = vs.LoadVersion(loadCtx)
		} else {
			stored, err = store.Load(loadCtx)
		}
		cancel()
		if hook != nil {
			hookErr := err
			if errors.Is(err, ErrNoData) {
				hookErr = nil
			}
			hook("load", hookErr, time.Since(started))
		}
		switch {
		case err == nil:
			var dropped int
			list, dropped = sanitize(stored)
			if dropped > 0 {
				logger.Printf("tasks: dropped %d invalid task(s) while loading from %s store", dropped, store.Name())
			}
		case errors.Is(err, ErrNoData):
		default:
			logger.Printf("tasks: load from %s store failed, starting empty: %v", store.Name(), err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return len(m.list)
	}
	m.loaded = true
	if list == nil {
		list = []Task{}
	}
	m.list = list
	if storedVersion > m.version {
		m.version = storedVersion
	}
	m.version++
	m.publishLocked(m.snapshotLocked())
	return len(m.list)
}

func (m *Manager) Add(text string) (Task, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Task{}, false
	}
	task := Task{
		ID:   uuid.NewString(),
		Text: text,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = append(m.list, task)
	m.changedLocked()
	return task, true
}

func (m *Manager) Toggle(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return Task{}, false
	}
	m.list[i].Completed = !m.list[i].Completed
	task := m.list[i]
	m.changedLocked()
	return task, true
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return false
	}
	next := make([]Task, 0, len(m.list)-1)
	next = append(next, m.list[:i]...)
	next = append(next, m.list[i+1:]...)
	m.list = next
	m.changedLocked()
	return true
}

// ClearCompleted removes every completed task and returns how many were removed.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := filterTasks(m.list, FilterActive)
	removed := len(m.list) - len(kept)
	if removed == 0 {
		return 0
	}
	m.list = kept
	m.changedLocked()
	return removed
}

func (m *Manager) Get(id string) (Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexLocked(id)
	if i < 0 {
		return Task{}, ErrTaskNotFound
	}
	return m.list[i], nil
}

// Filter returns copies of the tasks selected by mode, in insertion order.
func (m *Manager) Filter(mode FilterMode) []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterTasks(m.list, mode)
}

func (m *Manager) Counts() Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return countTasks(m.list)
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Subscribe registers an observer. The current snapshot is delivered right away
// and a new one follows every change. A slow reader loses intermediate
// snapshots, never the latest one.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, m.subBuffer)

	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers[id] = ch
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(c)
		}
	}
}

func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Flush waits until every change made so far has been handed to the store.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.RLock()
	q := m.queue
	m.mu.RUnlock()
	if q == nil {
		return nil
	}
	return q.flush(ctx)
}

// PersistedVersion is the newest version the store accepted, 0 if none.
func (m *Manager) PersistedVersion() uint64 {
	m.mu.RLock()
	q := m.queue
	m.mu.RUnlock()
	if q == nil {
		return 0
	}
	return q.lastWritten()
}

// Close writes any pending change, stops the writer and closes all subscriptions.
// The store itself stays open; its owner closes it.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	q := m.queue
	m.queue = nil
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
	m.mu.Unlock()

	if q == nil {
		return nil
	}
	return q.close(ctx)
}

func (m *Manager) indexLocked(id string) int {
	id = strings.TrimSpace(id)
	if id == "" {
		return -1
	}
	for i := range m.list {
		if m.list[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) changedLocked() {
	m.version++
	snap := m.snapshotLocked()
	m.publishLocked(snap)
	if m.queue != nil {
		m.queue.enqueue(snap)
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Version: m.version,
		Tasks:   cloneTasks(m.list),
		Counts:  countTasks(m.list),
	}
}

func (m *Manager) publishLocked(snap Snapshot) {
	for _, ch := range m.subscribers {
		select {
		case ch <- snap.Clone():
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap.Clone():
		default:
		}
	}
}
