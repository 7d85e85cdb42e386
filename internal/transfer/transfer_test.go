package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Tyrowin/chatroom/internal/common"
	"github.com/Tyrowin/chatroom/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
	types map[string]string
	err   error
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStorage) Put(_ context.Context, name, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.files[name] = append([]byte(nil), data...)
	m.types[name] = contentType
	return nil
}

func newTestManager(storage Storage) *Manager {
	m := NewManager(storage, Limits{SliceMin: SliceMin, SliceMax: SliceMax, MaxSize: 10 << 20}, logging.Discard())
	m.newID = func() string { return "fixed" }
	return m
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestManager_PullsSlicesUntilComplete(t *testing.T) {
	storage := newMemStorage()
	m := newTestManager(storage)
	ctx := context.Background()

	file := payload(250000)
	slice := func(i int) Slice {
		end := min((i+1)*100000, len(file))
		return Slice{Owner: "alice", Name: "f.bin", Type: "application/octet-stream", Size: 250000, SliceSize: 100000, Data: file[i*100000 : end]}
	}

	r := m.Receive(ctx, "c1", slice(0))
	assert.Equal(t, Result{Name: "f.bin", State: NeedSlice, NextSlice: 1}, r)

	r = m.Receive(ctx, "c1", slice(1))
	assert.Equal(t, Result{Name: "f.bin", State: NeedSlice, NextSlice: 2}, r)

	r = m.Receive(ctx, "c1", slice(2))
	require.Equal(t, Completed, r.State)
	assert.Equal(t, "fixed-f.bin", r.Stored)
	assert.Equal(t, int64(250000), r.Size)

	assert.True(t, bytes.Equal(file, storage.files["fixed-f.bin"]))
	assert.Equal(t, "application/octet-stream", storage.types["fixed-f.bin"])
	assert.Equal(t, 0, m.Active())
}

func TestManager_SliceSizeIsClamped(t *testing.T) {
	m := newTestManager(newMemStorage())
	assert.Equal(t, int64(SliceMin), m.clamp(0))
	assert.Equal(t, int64(SliceMin), m.clamp(10))
	assert.Equal(t, int64(500000), m.clamp(500000))
	assert.Equal(t, int64(SliceMax), m.clamp(5000000))
}

func TestManager_SmallSliceSizeIsRaised(t *testing.T) {
	storage := newMemStorage()
	m := newTestManager(storage)

	// A declared slice size of 10 is raised to the minimum, so 150000 bytes
	// take two slices instead of fifteen thousand.
	file := payload(150000)
	r := m.Receive(context.Background(), "c1", Slice{Name: "a", Size: 150000, SliceSize: 10, Data: file[:100000]})
	assert.Equal(t, NeedSlice, r.State)
	assert.Equal(t, 1, r.NextSlice)

	r = m.Receive(context.Background(), "c1", Slice{Name: "a", Size: 150000, SliceSize: 10, Data: file[100000:]})
	assert.Equal(t, Completed, r.State)
}

func TestManager_EmptyFileCompletesOnFirstSlice(t *testing.T) {
	storage := newMemStorage()
	m := newTestManager(storage)

	r := m.Receive(context.Background(), "c1", Slice{Name: "empty.txt", Size: 0})
	require.Equal(t, Completed, r.State)
	assert.Empty(t, storage.files[r.Stored])
}

func TestManager_RejectsBadSizes(t *testing.T) {
	m := newTestManager(newMemStorage())
	ctx := context.Background()

	r := m.Receive(ctx, "c1", Slice{Name: "big", Size: 11 << 20, Data: []byte("x")})
	assert.Equal(t, Failed, r.State)
	assert.ErrorIs(t, r.Err, common.ErrTransferIO)

	r = m.Receive(ctx, "c1", Slice{Name: "neg", Size: -1, Data: []byte("x")})
	assert.Equal(t, Failed, r.State)

	r = m.Receive(ctx, "c1", Slice{Name: "fat", Size: 300000, SliceSize: 100000, Data: payload(100001)})
	assert.Equal(t, Failed, r.State)
	assert.Equal(t, 0, m.Active())
}

func TestManager_WriteFailure(t *testing.T) {
	storage := newMemStorage()
	storage.err = errors.New("read-only file system")
	m := newTestManager(storage)

	r := m.Receive(context.Background(), "c1", Slice{Name: "f", Size: 5, Data: []byte("hello")})
	assert.Equal(t, Failed, r.State)
	assert.ErrorIs(t, r.Err, common.ErrTransferIO)
	assert.Equal(t, 0, m.Active())
}

func TestManager_AbandonDropsOnlyThatConnection(t *testing.T) {
	storage := newMemStorage()
	m := newTestManager(storage)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := m.Receive(ctx, "c1", Slice{Name: fmt.Sprintf("f%d", i), Size: 300000, Data: payload(100000)})
		require.Equal(t, NeedSlice, r.State)
	}
	r := m.Receive(ctx, "c2", Slice{Name: "f0", Size: 300000, Data: payload(100000)})
	require.Equal(t, NeedSlice, r.State)
	assert.Equal(t, 4, m.Active())

	assert.Equal(t, 3, m.Abandon("c1"))
	assert.Equal(t, 1, m.Active())
	assert.Equal(t, 0, m.Abandon("c1"))
	assert.Empty(t, storage.files)

	// A fresh transfer of the same name starts over from slice zero.
	r = m.Receive(ctx, "c1", Slice{Name: "f0", Size: 300000, Data: payload(100000)})
	assert.Equal(t, 1, r.NextSlice)
}

func TestManager_SameNameOnDifferentConnections(t *testing.T) {
	storage := newMemStorage()
	m := newTestManager(storage)
	ctx := context.Background()

	r := m.Receive(ctx, "c1", Slice{Name: "f", Size: 200000, Data: payload(100000)})
	require.Equal(t, NeedSlice, r.State)
	r = m.Receive(ctx, "c2", Slice{Name: "f", Size: 200000, Data: payload(100000)})
	assert.Equal(t, 1, r.NextSlice)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\bob\cat.png`, "cat.png"},
		{"my file (1).txt", "my_file__1_.txt"},
		{".hidden", "hidden"},
		{"", "file"},
		{"..", "file"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}
