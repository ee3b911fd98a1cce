// Package model defines data structures used throughout the application.
package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Item is a row of the items table.
type Item struct {
	ID          int32  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Line renders the item in the plain-text list format.
func (i Item) Line() string {
	return fmt.Sprintf("id: %d, name: %s, description: %s\n", i.ID, i.Name, i.Description)
}

// CreateItemInput is the request body of POST /items.
// Pointer fields let the validator tell a missing field from an empty one.
type CreateItemInput struct {
	Name        *string `json:"name" validate:"required"`
	Description *string `json:"description" validate:"required"`
}

// Validate reports a missing field. JSON type errors are caught earlier by
// the decoder.
func (in *CreateItemInput) Validate() error {
	return validate.Struct(in)
}

// UpdateItemInput is the request body of PUT /items.
type UpdateItemInput struct {
	ID          *int32  `json:"id" validate:"required"`
	Name        *string `json:"name" validate:"required"`
	Description *string `json:"description" validate:"required"`
}

// Validate reports a missing field.
func (in *UpdateItemInput) Validate() error {
	return validate.Struct(in)
}

// Item converts the input into an Item. Call only after validation.
func (in UpdateItemInput) Item() Item {
	return Item{
		ID:          *in.ID,
		Name:        *in.Name,
		Description: *in.Description,
	}
}

// Item event types.
const (
	EventItemCreated = "item_created"
	EventItemUpdated = "item_updated"
	EventItemDeleted = "item_deleted"
)

// ItemEvent describes a successful write, pushed to WebSocket subscribers.
type ItemEvent struct {
	Type        string    `json:"type"`
	ID          *int32    `json:"id,omitempty"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewCreatedEvent creates an item_created event. The id is unknown to the
// service at this point, so it is left out.
func NewCreatedEvent(name, description string) ItemEvent {
	return ItemEvent{
		Type:        EventItemCreated,
		Name:        name,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
}

// NewUpdatedEvent creates an item_updated event.
func NewUpdatedEvent(item Item) ItemEvent {
	id := item.ID
	return ItemEvent{
		Type:        EventItemUpdated,
		ID:          &id,
		Name:        item.Name,
		Description: item.Description,
		Timestamp:   time.Now().UTC(),
	}
}

// NewDeletedEvent creates an item_deleted event.
func NewDeletedEvent(id int32) ItemEvent {
	return ItemEvent{
		Type:      EventItemDeleted,
		ID:        &id,
		Timestamp: time.Now().UTC(),
	}
}
