package store

import (
	"context"
	"sort"
	"sync"

	"github.com/vyrodovalexey/items-service/internal/model"
)

// MemoryStore implements Store interface with in-memory storage.
// Ids come from a counter that starts at 1 and never reuses values.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[int32]model.Item
	nextID int32
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:  make(map[int32]model.Item),
		nextID: 1,
	}
}

// List returns all items ordered by id.
func (s *MemoryStore) List(ctx context.Context) ([]model.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError("list items", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	return items, nil
}

// Create adds a new item under the next id.
func (s *MemoryStore) Create(ctx context.Context, name, description string) error {
	if err := ctx.Err(); err != nil {
		return storeError("create item", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.items[id] = model.Item{
		ID:          id,
		Name:        name,
		Description: description,
	}

	return nil
}

// Update overwrites an existing item. A missing id is a no-op.
func (s *MemoryStore) Update(ctx context.Context, item model.Item) error {
	if err := ctx.Err(); err != nil {
		return storeError("update item", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		s.items[item.ID] = item
	}

	return nil
}

// Delete removes an item. A missing id is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id int32) error {
	if err := ctx.Err(); err != nil {
		return storeError("delete item", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, id)

	return nil
}
