// Package transfer reassembles files sent as a sequence of slices. The
// receiver pulls one slice at a time: every accepted slice is answered with
// the index of the next one until the declared size has arrived.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/Tyrowin/chatroom/internal/common"
	"github.com/Tyrowin/chatroom/internal/logging"
	"github.com/google/uuid"
)

const (
	SliceMin = 100000
	SliceMax = 1000000
)

// State is the outcome of one received slice.
type State int

const (
	NeedSlice State = iota
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case NeedSlice:
		return "need_slice"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Slice is one inbound piece of a file. SliceSize zero means the sender did
// not declare one.
type Slice struct {
	Owner     string
	Name      string
	Type      string
	Size      int64
	SliceSize int64
	Data      []byte
}

type Result struct {
	Name      string
	State     State
	NextSlice int
	// Stored is the name the file was persisted under, set on Completed.
	Stored string
	Size   int64
	Err    error
}

// Storage persists completed files.
type Storage interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
}

type Limits struct {
	SliceMin int64
	SliceMax int64
	MaxSize  int64
}

type key struct {
	conn string
	name string
}

type task struct {
	owner     string
	filename  string
	mimeType  string
	totalSize int64
	sliceSize int64
	slices    [][]byte
}

func (t *task) complete() bool {
	return int64(len(t.slices))*t.sliceSize >= t.totalSize
}

// Manager owns every in-flight transfer, keyed by connection and file name.
type Manager struct {
	storage Storage
	limits  Limits
	logger  logging.Logger
	newID   func() string

	mu    sync.Mutex
	tasks map[key]*task
}

func NewManager(storage Storage, limits Limits, logger logging.Logger) *Manager {
	if limits.SliceMin <= 0 {
		limits.SliceMin = SliceMin
	}
	if limits.SliceMax < limits.SliceMin {
		limits.SliceMax = max(int64(SliceMax), limits.SliceMin)
	}
	return &Manager{
		storage: storage,
		limits:  limits,
		logger:  logger.With("component", "transfer"),
		newID:   func() string { return uuid.NewString() },
		tasks:   make(map[key]*task),
	}
}

// Receive appends a slice to the transfer of (connectionID, s.Name),
// creating it on the first slice. The completed file is written outside the
// manager lock.
func (m *Manager) Receive(ctx context.Context, connectionID string, s Slice) Result {
	k := key{conn: connectionID, name: s.Name}

	m.mu.Lock()
	t, ok := m.tasks[k]
	if !ok {
		if s.Size < 0 || (m.limits.MaxSize > 0 && s.Size > m.limits.MaxSize) {
			m.mu.Unlock()
			m.logger.Warn(ctx, "upload rejected", "connection_id", connectionID, "name", s.Name, "size", s.Size)
			return Result{Name: s.Name, State: Failed, Err: fmt.Errorf("%w: declared size %d out of range", common.ErrTransferIO, s.Size)}
		}
		t = &task{
			owner:     s.Owner,
			filename:  s.Name,
			mimeType:  s.Type,
			totalSize: s.Size,
			sliceSize: m.clamp(s.SliceSize),
		}
		m.tasks[k] = t
	}

	if int64(len(s.Data)) > t.sliceSize {
		delete(m.tasks, k)
		m.mu.Unlock()
		m.logger.Warn(ctx, "oversized slice", "connection_id", connectionID, "name", s.Name, "len", len(s.Data), "slice_size", t.sliceSize)
		return Result{Name: s.Name, State: Failed, Err: fmt.Errorf("%w: slice of %d bytes exceeds %d", common.ErrTransferIO, len(s.Data), t.sliceSize)}
	}

	t.slices = append(t.slices, s.Data)
	if !t.complete() {
		next := len(t.slices)
		m.mu.Unlock()
		return Result{Name: s.Name, State: NeedSlice, NextSlice: next}
	}
	delete(m.tasks, k)
	m.mu.Unlock()

	data := bytes.Join(t.slices, nil)
	stored := m.newID() + "-" + SanitizeName(t.filename)
	if err := m.storage.Put(ctx, stored, t.mimeType, data); err != nil {
		m.logger.Error(ctx, "upload write failed", "connection_id", connectionID, "name", t.filename, "error", err)
		return Result{Name: s.Name, State: Failed, Err: fmt.Errorf("%w: %v", common.ErrTransferIO, err)}
	}

	m.logger.Info(ctx, "upload completed", "connection_id", connectionID, "owner", t.owner, "name", t.filename, "stored", stored, "bytes", len(data))
	return Result{Name: s.Name, State: Completed, Stored: stored, Size: int64(len(data))}
}

// Abandon drops every unfinished transfer of connectionID and reports how
// many there were. Nothing is written.
func (m *Manager) Abandon(connectionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.tasks {
		if k.conn == connectionID {
			delete(m.tasks, k)
			n++
		}
	}
	return n
}

// Active returns the number of unfinished transfers.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *Manager) clamp(size int64) int64 {
	if size <= 0 {
		return m.limits.SliceMin
	}
	return min(max(size, m.limits.SliceMin), m.limits.SliceMax)
}
