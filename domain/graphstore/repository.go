package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/modelcurator/metagraph/pkg/apperror"
	"github.com/modelcurator/metagraph/pkg/logger"
	"github.com/modelcurator/metagraph/pkg/pgutils"
)

// Repository is the PostgreSQL-backed Store.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

var _ Store = (*Repository)(nil)

// NewRepository creates a new graph store repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("graphstore.repo")),
	}
}

func (r *Repository) UpsertNode(ctx context.Context, label, key, name string, props map[string]any) (*Node, error) {
	if name == WildcardSentinel || key == WildcardSentinel {
		// The wildcard is a selector-level sentinel only. Materializing it
		// historically required a dedicated repair pass to undo.
		return nil, apperror.ErrValidation.WithMessagef("%q cannot be persisted as a node", WildcardSentinel)
	}
	if label == "" || key == "" {
		return nil, apperror.ErrValidation.WithMessage("node label and key are required")
	}
	if props == nil {
		props = map[string]any{}
	}

	node := &Node{
		Label:      label,
		Key:        key,
		Name:       name,
		Properties: props,
	}

	_, err := r.db.NewInsert().
		Model(node).
		On("CONFLICT (label, key) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("properties = n.properties || EXCLUDED.properties").
		Set("updated_at = now()").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return node, nil
}

func (r *Repository) FindNode(ctx context.Context, label, key string) (*Node, error) {
	node := new(Node)
	err := r.db.NewSelect().
		Model(node).
		Where("label = ?", label).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrNotFound.WithMessagef("node %s/%s not found", label, key)
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return node, nil
}

func (r *Repository) GetNode(ctx context.Context, id uuid.UUID) (*Node, error) {
	node := new(Node)
	err := r.db.NewSelect().
		Model(node).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrNotFound.WithMessagef("node %s not found", id)
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return node, nil
}

func (r *Repository) MatchNodes(ctx context.Context, f NodeFilter) ([]*Node, error) {
	var nodes []*Node
	q := r.db.NewSelect().Model(&nodes)

	if f.Label != "" {
		q = q.Where("label = ?", f.Label)
	}
	if len(f.Keys) > 0 {
		q = q.Where("key IN (?)", bun.In(f.Keys))
	}
	if f.KeyPrefix != "" {
		q = q.Where("key LIKE ?", f.KeyPrefix+"%")
	}
	if len(f.ExcludeNames) > 0 {
		q = q.Where("name NOT IN (?)", bun.In(f.ExcludeNames))
	}

	q = q.Order("name ASC", "id ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return nodes, nil
}

func (r *Repository) UpdateNodeProps(ctx context.Context, id uuid.UUID, props map[string]any) error {
	if len(props) == 0 {
		return nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}

	res, err := r.db.NewUpdate().
		Model((*Node)(nil)).
		Set("properties = properties || ?::jsonb", string(data)).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrNotFound.WithMessagef("node %s not found", id)
	}
	return nil
}

func (r *Repository) DeleteNode(ctx context.Context, id uuid.UUID) error {
	// Edges cascade via FK.
	_, err := r.db.NewDelete().
		Model((*Node)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) CreateEdge(ctx context.Context, typ string, src, dst uuid.UUID, props map[string]any) (*Edge, error) {
	if typ == "" {
		return nil, apperror.ErrValidation.WithMessage("edge type is required")
	}
	if props == nil {
		props = map[string]any{}
	}

	edge := &Edge{
		Type:       typ,
		SrcID:      src,
		DstID:      dst,
		Properties: props,
	}

	_, err := r.db.NewInsert().
		Model(edge).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return nil, apperror.ErrDuplicate.WithMessagef(
				"edge %s %s -> %s already exists", typ, src, dst).WithInternal(err)
		}
		if pgutils.IsForeignKeyViolation(err) {
			return nil, apperror.ErrNotFound.WithMessagef(
				"edge %s endpoint missing", typ).WithInternal(err)
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return edge, nil
}

func (r *Repository) MatchEdges(ctx context.Context, p EdgePattern) ([]*Edge, error) {
	var edges []*Edge
	q := r.db.NewSelect().Model(&edges)
	q = applyEdgePattern(q, p)
	q = q.Order("created_at ASC", "id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

func (r *Repository) UpdateEdgeProps(ctx context.Context, id uuid.UUID, props map[string]any) error {
	if len(props) == 0 {
		return nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return apperror.ErrInternal.WithInternal(err)
	}

	res, err := r.db.NewUpdate().
		Model((*Edge)(nil)).
		Set("properties = properties || ?::jsonb", string(data)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ErrNotFound.WithMessagef("edge %s not found", id)
	}
	return nil
}

func (r *Repository) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*Edge)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) DeleteEdges(ctx context.Context, p EdgePattern) (int, error) {
	if p.Type == "" && p.TypePrefix == "" && p.SrcID == nil && p.DstID == nil {
		return 0, apperror.ErrValidation.WithMessage("refusing unbounded edge delete")
	}

	q := r.db.NewDelete().Model((*Edge)(nil))
	q = applyEdgePatternDelete(q, p)

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Repository{db: tx, log: r.log})
	})
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func applyEdgePattern(q *bun.SelectQuery, p EdgePattern) *bun.SelectQuery {
	if p.Type != "" {
		q = q.Where("type = ?", p.Type)
	}
	if p.TypePrefix != "" {
		q = q.Where("type LIKE ?", p.TypePrefix+"%")
	}
	if p.SrcID != nil {
		q = q.Where("src_id = ?", *p.SrcID)
	}
	if p.DstID != nil {
		q = q.Where("dst_id = ?", *p.DstID)
	}
	for key, val := range p.PropEquals {
		q = q.Where(fmt.Sprintf("properties ->> %s = ?", quoteLiteral(key)), val)
	}
	return q
}

func applyEdgePatternDelete(q *bun.DeleteQuery, p EdgePattern) *bun.DeleteQuery {
	if p.Type != "" {
		q = q.Where("type = ?", p.Type)
	}
	if p.TypePrefix != "" {
		q = q.Where("type LIKE ?", p.TypePrefix+"%")
	}
	if p.SrcID != nil {
		q = q.Where("src_id = ?", *p.SrcID)
	}
	if p.DstID != nil {
		q = q.Where("dst_id = ?", *p.DstID)
	}
	for key, val := range p.PropEquals {
		q = q.Where(fmt.Sprintf("properties ->> %s = ?", quoteLiteral(key)), val)
	}
	return q
}

// quoteLiteral single-quotes a jsonb property name. Property names come from
// in-code constants, never user input, but quoting keeps the invariant local.
func quoteLiteral(s string) string {
	out := make([]rune, 0, len(s)+2)
	out = append(out, '\'')
	for _, r := range s {
		if r == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, r)
	}
	return string(append(out, '\''))
}
