// Package storetest opens throwaway in-memory stores for package tests.
package storetest

import (
	"context"
	"testing"

	"github.com/nrednav/cuid2"

	"uk.co.dudmesh.parley/internal/store"
)

type memoryConfig struct {
	url string
}

func (c memoryConfig) DatabaseDriver() string { return "sqlite3" }
func (c memoryConfig) DatabaseURL() string    { return c.url }

// New returns a store backed by a private shared-cache in-memory sqlite database.
func New(t testing.TB) *store.Store {
	t.Helper()

	config := memoryConfig{url: "file:" + cuid2.Generate() + "?mode=memory&cache=shared"}
	s, err := store.Open(context.Background(), config)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
