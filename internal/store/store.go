// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/items-service/internal/model"
)

// ErrStore matches every *Error with errors.Is.
var ErrStore = errors.New("store error")

// Error is a failure reported by the backing store. Its message is the
// store's own message; callers do not classify it further.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrStore so callers can test for any store failure.
func (e *Error) Is(target error) bool {
	return target == ErrStore
}

func storeError(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// Store defines the interface for item storage operations.
//
// Update and Delete succeed when no row matches the id; the store does not
// distinguish a missing id from a write.
type Store interface {
	// List returns all items in the store's natural order.
	List(ctx context.Context) ([]model.Item, error)

	// Create inserts a new item. The store assigns the id, which is not returned.
	Create(ctx context.Context, name, description string) error

	// Update overwrites name and description of the item with item.ID.
	Update(ctx context.Context, item model.Item) error

	// Delete removes the item with the given id.
	Delete(ctx context.Context, id int32) error
}
