package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/items-service/internal/database"
	"github.com/vyrodovalexey/items-service/internal/logging"
	"github.com/vyrodovalexey/items-service/internal/model"
)

const (
	listItemsSQL  = `SELECT id, name, description FROM items`
	createItemSQL = `INSERT INTO items (name, description) VALUES ($1, $2)`
	updateItemSQL = `UPDATE items SET name = $1, description = $2 WHERE id = $3`
	deleteItemSQL = `DELETE FROM items WHERE id = $1`
)

// PostgresStore implements Store on top of a database handle.
// Every call is a single autocommit statement.
type PostgresStore struct {
	db     database.Querier
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore. The caller owns db.
func NewPostgresStore(db database.Querier, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PostgresStore{
		db:     db,
		logger: logger.With(zap.String("component", "item_store")),
	}
}

// List returns every row of the items table.
func (s *PostgresStore) List(ctx context.Context) ([]model.Item, error) {
	rows, err := s.db.Query(ctx, listItemsSQL)
	if err != nil {
		return nil, storeError("list items", err)
	}

	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Item])
	if err != nil {
		return nil, storeError("list items", err)
	}

	return items, nil
}

// Create inserts a row; the database assigns the id.
func (s *PostgresStore) Create(ctx context.Context, name, description string) error {
	if _, err := s.db.Exec(ctx, createItemSQL, name, description); err != nil {
		return storeError("create item", err)
	}

	return nil
}

// Update overwrites the row with item.ID. Zero matched rows is not an error.
func (s *PostgresStore) Update(ctx context.Context, item model.Item) error {
	tag, err := s.db.Exec(ctx, updateItemSQL, item.Name, item.Description, item.ID)
	if err != nil {
		return storeError("update item", err)
	}

	logging.WithContext(ctx, s.logger).Debug("item updated",
		zap.Int32("item_id", item.ID),
		zap.Int64("rows_affected", tag.RowsAffected()),
	)

	return nil
}

// Delete removes the row with id. Zero matched rows is not an error.
func (s *PostgresStore) Delete(ctx context.Context, id int32) error {
	tag, err := s.db.Exec(ctx, deleteItemSQL, id)
	if err != nil {
		return storeError("delete item", err)
	}

	logging.WithContext(ctx, s.logger).Debug("item deleted",
		zap.Int32("item_id", id),
		zap.Int64("rows_affected", tag.RowsAffected()),
	)

	return nil
}
