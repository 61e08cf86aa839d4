// Package graphstore exposes the minimal store-agnostic primitive set the
// reconciliation engine consumes: node upsert/match, edge create/match/delete
// and a transactional boundary. Two implementations exist: the bun/PostgreSQL
// Repository and the MemoryStore used by tests and dry runs.
package graphstore

import (
	"context"

	"github.com/google/uuid"
)

// WildcardSentinel is the selector-level "every node in this category" marker.
// It is resolved at reconcile time and must never be persisted as a node; the
// store rejects it as a node name.
const WildcardSentinel = "ALL"

// NodeFilter narrows MatchNodes. Zero-value fields are ignored.
type NodeFilter struct {
	Label     string
	Keys      []string
	KeyPrefix string

	// ExcludeNames drops nodes by name, e.g. legacy literal-ALL sentinels
	// during wildcard expansion.
	ExcludeNames []string

	// Limit/Offset page through nodes ordered by (name, id). Limit 0 means
	// no limit.
	Limit  int
	Offset int
}

// EdgePattern narrows MatchEdges and DeleteEdges. Zero-value fields are
// ignored; at least one of Type/TypePrefix/SrcID/DstID must be set for
// DeleteEdges (a full-table delete is never what a reconciler means).
type EdgePattern struct {
	Type       string
	TypePrefix string
	SrcID      *uuid.UUID
	DstID      *uuid.UUID

	// PropEquals matches string-valued edge properties, e.g. {"role": name}.
	PropEquals map[string]string
}

// Store is the primitive graph interface the domain services are written
// against.
type Store interface {
	// UpsertNode creates or updates the node identified by (label, key) and
	// returns its current row. Name and properties are overwritten on update.
	UpsertNode(ctx context.Context, label, key, name string, props map[string]any) (*Node, error)

	// FindNode returns the node identified by (label, key), or
	// apperror.ErrNotFound.
	FindNode(ctx context.Context, label, key string) (*Node, error)

	// GetNode returns the node by ID, or apperror.ErrNotFound.
	GetNode(ctx context.Context, id uuid.UUID) (*Node, error)

	// MatchNodes returns nodes matching the filter ordered by (name, id).
	MatchNodes(ctx context.Context, f NodeFilter) ([]*Node, error)

	// UpdateNodeProps merges props into the node's properties.
	UpdateNodeProps(ctx context.Context, id uuid.UUID, props map[string]any) error

	// DeleteNode removes the node and, by cascade, every edge touching it.
	DeleteNode(ctx context.Context, id uuid.UUID) error

	// CreateEdge creates a typed edge. A second create for an already
	// satisfied (type, src, dst, role) returns apperror.ErrDuplicate.
	CreateEdge(ctx context.Context, typ string, src, dst uuid.UUID, props map[string]any) (*Edge, error)

	// MatchEdges returns edges matching the pattern ordered by creation time.
	MatchEdges(ctx context.Context, p EdgePattern) ([]*Edge, error)

	// UpdateEdgeProps merges props into the edge's properties.
	UpdateEdgeProps(ctx context.Context, id uuid.UUID, props map[string]any) error

	// DeleteEdge removes a single edge by ID. Deleting an absent edge is not
	// an error; reconcilers race with cascades.
	DeleteEdge(ctx context.Context, id uuid.UUID) error

	// DeleteEdges removes every edge matching the pattern and reports how
	// many went away.
	DeleteEdges(ctx context.Context, p EdgePattern) (int, error)

	// RunInTx runs fn against a transactional view of the store. The diff
	// and apply halves of a reconciliation always share one transaction so a
	// failed apply never leaves a half-reconciled entity behind.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
