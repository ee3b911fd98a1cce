package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/items-service/internal/config"
	"github.com/vyrodovalexey/items-service/internal/database"
	"github.com/vyrodovalexey/items-service/internal/store"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		wantErr bool
	}{
		{"debug level", "debug", false},
		{"info level", "info", false},
		{"warn level", "warn", false},
		{"error level", "error", false},
		{"invalid level defaults to info", "invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			logger, err := initLogger(tt.level)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("initLogger() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("initLogger() error = %v", err)
			}
			if logger == nil {
				t.Error("initLogger() returned nil logger")
			}
		})
	}
}

func TestOpenStore_Memory(t *testing.T) {
	// Arrange
	cfg := &config.Config{StoreBackend: config.StoreBackendMemory}

	// Act
	itemStore, pinger, closeStore, err := openStore(context.Background(), cfg, zap.NewNop())

	// Assert
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	defer closeStore()

	if _, ok := itemStore.(*store.MemoryStore); !ok {
		t.Errorf("openStore() store = %T, want *store.MemoryStore", itemStore)
	}
	if pinger != nil {
		t.Error("memory backend should not have a pinger")
	}
}

func TestOpenStore_UnreachableDatabase(t *testing.T) {
	for _, mode := range []string{config.DBModePool, config.DBModeSingle} {
		t.Run(mode, func(t *testing.T) {
			// Arrange
			cfg := &config.Config{
				StoreBackend: config.StoreBackendPostgres,
				Database: config.DatabaseConfig{
					URL:            "postgres://postgres@127.0.0.1:1/items?sslmode=disable",
					Mode:           mode,
					MaxConns:       1,
					ConnectTimeout: 2 * time.Second,
					Keepalive:      time.Second,
				},
			}

			// Act
			itemStore, pinger, closeStore, err := openStore(context.Background(), cfg, zap.NewNop())

			// Assert
			if err == nil {
				t.Fatal("openStore() expected error, got nil")
			}
			if !errors.Is(err, database.ErrConnection) {
				t.Errorf("openStore() error = %v, want ErrConnection", err)
			}
			if itemStore != nil || pinger != nil {
				t.Error("openStore() should return no store on failure")
			}
			closeStore()
		})
	}
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	cfg := &config.Config{StoreBackend: "redis"}

	_, _, closeStore, err := openStore(context.Background(), cfg, zap.NewNop())

	if err == nil {
		t.Fatal("openStore() expected error for unknown backend")
	}
	closeStore()
}
