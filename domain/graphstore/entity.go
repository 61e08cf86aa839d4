package graphstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Node is a property-graph node. Identity is (Label, Key); Key is the
// store-level unique handle within a label (for most labels it equals Name,
// composite keys are used where names are only unique in context, e.g. list
// values scoped to their owning list and tier).
type Node struct {
	bun.BaseModel `bun:"table:mg.nodes,alias:n"`

	ID         uuid.UUID      `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Label      string         `bun:"label,notnull" json:"label"`
	Key        string         `bun:"key,notnull" json:"key"`
	Name       string         `bun:"name,notnull" json:"name"`
	Properties map[string]any `bun:"properties,type:jsonb,notnull,default:'{}'" json:"properties"`

	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:now()" json:"updated_at"`
}

// PropString reads a string property, returning "" when absent.
func (n *Node) PropString(key string) string {
	if n == nil || n.Properties == nil {
		return ""
	}
	s, _ := n.Properties[key].(string)
	return s
}

// PropInt reads an integer property, tolerating the float64 shape jsonb
// round-trips produce.
func (n *Node) PropInt(key string) int {
	if n == nil || n.Properties == nil {
		return 0
	}
	switch v := n.Properties[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Edge is a typed, directed edge between two nodes. Edge families that need
// per-pair multiplicity (object relationships) are distinguished by their
// "role" property; everything else is propertyless and unique per
// (type, src, dst).
type Edge struct {
	bun.BaseModel `bun:"table:mg.edges,alias:e"`

	ID         uuid.UUID      `bun:"id,pk,type:uuid,default:uuid_generate_v4()" json:"id"`
	Type       string         `bun:"type,notnull" json:"type"`
	SrcID      uuid.UUID      `bun:"src_id,type:uuid,notnull" json:"src_id"`
	DstID      uuid.UUID      `bun:"dst_id,type:uuid,notnull" json:"dst_id"`
	Properties map[string]any `bun:"properties,type:jsonb,notnull,default:'{}'" json:"properties"`

	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// Role returns the edge's role property ("" for propertyless edge families).
func (e *Edge) Role() string {
	if e == nil || e.Properties == nil {
		return ""
	}
	s, _ := e.Properties["role"].(string)
	return s
}

// PropString reads a string property, returning "" when absent.
func (e *Edge) PropString(key string) string {
	if e == nil || e.Properties == nil {
		return ""
	}
	s, _ := e.Properties[key].(string)
	return s
}
