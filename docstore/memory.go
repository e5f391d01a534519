package docstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aivoicefromthevoid/mira/fault"
)

// MemoryStore keeps documents in process memory. It honours version tokens the
// same way the remote backends do and is used for local development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string]memoryDoc
	messages []string
	history  map[string][]string
	seq      int
}

var (
	_ Store     = (*MemoryStore)(nil)
	_ Historian = (*MemoryStore)(nil)
)

type memoryDoc struct {
	data    []byte
	version string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]memoryDoc), history: make(map[string][]string)}
}

// Read implements Store.Read.
func (m *MemoryStore) Read(ctx context.Context, path string) (*Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.StoreUnavailable("read "+path, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[path]
	if !ok {
		return nil, nil
	}
	data := make([]byte, len(doc.data))
	copy(data, doc.data)
	return &Blob{Data: data, Version: doc.version}, nil
}

// Write implements Store.Write.
func (m *MemoryStore) Write(ctx context.Context, path string, data []byte, message, version string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fault.StoreUnavailable("write "+path, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.docs[path]
	if version == "" && exists {
		version = current.version
	}
	if version != "" && (!exists || current.version != version) {
		return "", fault.StoreConflict(fmt.Sprintf("write %s", path), fmt.Errorf("version %q is stale", version))
	}

	m.seq++
	next := "v" + strconv.Itoa(m.seq)
	stored := make([]byte, len(data))
	copy(stored, data)
	m.docs[path] = memoryDoc{data: stored, version: next}
	m.messages = append(m.messages, message)
	m.history[path] = append(m.history[path], message)
	return next, nil
}

// History implements Historian.
func (m *MemoryStore) History(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.StoreUnavailable("history "+path, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.history[path]))
	copy(out, m.history[path])
	return out, nil
}

// Messages returns the commit messages recorded so far for every path, oldest
// first.
func (m *MemoryStore) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	copy(out, m.messages)
	return out
}
