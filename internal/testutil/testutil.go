// Package testutil provides fixtures shared by the domain test suites.
package testutil

import (
	"log/slog"
	"testing"

	"github.com/modelcurator/metagraph/domain/graphstore"
	"github.com/modelcurator/metagraph/internal/config"
)

// NewConfig returns a config with small sweep pages so tests exercise the
// paging paths.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Sweep: config.SweepConfig{
			Enabled:         true,
			PageSize:        10,
			PairConcurrency: 2,
		},
	}
}

// NewStore returns a fresh in-memory graph store.
func NewStore(t *testing.T) *graphstore.MemoryStore {
	t.Helper()
	return graphstore.NewMemoryStore()
}

// NewLogger returns a logger that swallows output.
func NewLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.DiscardHandler)
}

// SeedNode upserts a node whose key equals its name, the common case for
// objects, driver values, parts and groups.
func SeedNode(t *testing.T, store *graphstore.MemoryStore, label, name string) *graphstore.Node {
	t.Helper()
	node, err := store.UpsertNode(t.Context(), label, name, name, nil)
	if err != nil {
		t.Fatalf("seed node %s/%s: %v", label, name, err)
	}
	return node
}

// SeedNodeProps is SeedNode with initial properties.
func SeedNodeProps(t *testing.T, store *graphstore.MemoryStore, label, name string, props map[string]any) *graphstore.Node {
	t.Helper()
	node, err := store.UpsertNode(t.Context(), label, name, name, props)
	if err != nil {
		t.Fatalf("seed node %s/%s: %v", label, name, err)
	}
	return node
}

// SeedRawNode loads a node verbatim, bypassing write-path guards. Used to
// reproduce legacy states the guards now prevent.
func SeedRawNode(t *testing.T, store *graphstore.MemoryStore, label, key, name string) *graphstore.Node {
	t.Helper()
	return store.Load(&graphstore.Node{
		Label:      label,
		Key:        key,
		Name:       name,
		Properties: map[string]any{},
	})
}
