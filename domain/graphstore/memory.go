package graphstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modelcurator/metagraph/pkg/apperror"
)

// MemoryStore is a mutex-guarded in-memory Store with snapshot-rollback
// transactions. Tests and dry runs use it in place of the PostgreSQL
// repository; semantics (upsert merge, duplicate detection, cascade delete,
// ordering) mirror the SQL implementation.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

func (s *MemoryStore) UpsertNode(ctx context.Context, label, key, name string, props map[string]any) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.upsertNode(label, key, name, props)
}

func (s *MemoryStore) FindNode(ctx context.Context, label, key string) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.findNode(label, key)
}

func (s *MemoryStore) GetNode(ctx context.Context, id uuid.UUID) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.getNode(id)
}

func (s *MemoryStore) MatchNodes(ctx context.Context, f NodeFilter) ([]*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.matchNodes(f)
}

func (s *MemoryStore) UpdateNodeProps(ctx context.Context, id uuid.UUID, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.updateNodeProps(id, props)
}

func (s *MemoryStore) DeleteNode(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.deleteNode(id)
}

func (s *MemoryStore) CreateEdge(ctx context.Context, typ string, src, dst uuid.UUID, props map[string]any) (*Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createEdge(typ, src, dst, props)
}

func (s *MemoryStore) MatchEdges(ctx context.Context, p EdgePattern) ([]*Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.matchEdges(p)
}

func (s *MemoryStore) UpdateEdgeProps(ctx context.Context, id uuid.UUID, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.updateEdgeProps(id, props)
}

func (s *MemoryStore) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.deleteEdge(id)
}

func (s *MemoryStore) DeleteEdges(ctx context.Context, p EdgePattern) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.deleteEdges(p)
}

// RunInTx holds the store lock for the whole callback and rolls the data back
// to a snapshot if fn fails. That also serializes concurrent reconciliations,
// matching the per-entity locking the services layer adds on top.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(ctx, &memTx{data: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// Load inserts a node verbatim, bypassing upsert guards and property merging.
// It exists for fixture loading: repair-path tests need to reproduce states
// (like persisted wildcard sentinels) that the write path refuses to create.
func (s *MemoryStore) Load(node *Node) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := copyNode(node)
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
		n.UpdatedAt = n.CreatedAt
	}
	s.data.nodes[n.ID] = n
	s.data.nodeByKey[nodeIdentity(n.Label, n.Key)] = n.ID
	return copyNode(n)
}

// LoadEdge inserts an edge verbatim, bypassing the (type, src, dst, role)
// uniqueness guard. Audit tests use it to reproduce duplicate edges written
// by stores that predate the uniqueness index.
func (s *MemoryStore) LoadEdge(edge *Edge) *Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := copyEdge(edge)
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.data.edges[e.ID] = e
	s.data.edgeOrder = append(s.data.edgeOrder, e.ID)
	triple := edgeTriple(e.Type, e.SrcID, e.DstID, e.Role())
	if _, ok := s.data.edgeByTriple[triple]; !ok {
		s.data.edgeByTriple[triple] = e.ID
	}
	return copyEdge(e)
}

// memTx is the unlocked view handed to RunInTx callbacks; the outer lock is
// already held.
type memTx struct {
	data *memData
}

var _ Store = (*memTx)(nil)

func (t *memTx) UpsertNode(ctx context.Context, label, key, name string, props map[string]any) (*Node, error) {
	return t.data.upsertNode(label, key, name, props)
}

func (t *memTx) FindNode(ctx context.Context, label, key string) (*Node, error) {
	return t.data.findNode(label, key)
}

func (t *memTx) GetNode(ctx context.Context, id uuid.UUID) (*Node, error) {
	return t.data.getNode(id)
}

func (t *memTx) MatchNodes(ctx context.Context, f NodeFilter) ([]*Node, error) {
	return t.data.matchNodes(f)
}

func (t *memTx) UpdateNodeProps(ctx context.Context, id uuid.UUID, props map[string]any) error {
	return t.data.updateNodeProps(id, props)
}

func (t *memTx) DeleteNode(ctx context.Context, id uuid.UUID) error {
	return t.data.deleteNode(id)
}

func (t *memTx) CreateEdge(ctx context.Context, typ string, src, dst uuid.UUID, props map[string]any) (*Edge, error) {
	return t.data.createEdge(typ, src, dst, props)
}

func (t *memTx) MatchEdges(ctx context.Context, p EdgePattern) ([]*Edge, error) {
	return t.data.matchEdges(p)
}

func (t *memTx) UpdateEdgeProps(ctx context.Context, id uuid.UUID, props map[string]any) error {
	return t.data.updateEdgeProps(id, props)
}

func (t *memTx) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	return t.data.deleteEdge(id)
}

func (t *memTx) DeleteEdges(ctx context.Context, p EdgePattern) (int, error) {
	return t.data.deleteEdges(p)
}

func (t *memTx) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	// Already inside the outer transaction.
	return fn(ctx, t)
}

type memData struct {
	nodes     map[uuid.UUID]*Node
	nodeByKey map[string]uuid.UUID

	edges        map[uuid.UUID]*Edge
	edgeByTriple map[string]uuid.UUID
	edgeOrder    []uuid.UUID
}

func newMemData() *memData {
	return &memData{
		nodes:        make(map[uuid.UUID]*Node),
		nodeByKey:    make(map[string]uuid.UUID),
		edges:        make(map[uuid.UUID]*Edge),
		edgeByTriple: make(map[string]uuid.UUID),
	}
}

func nodeIdentity(label, key string) string {
	return label + "\x00" + key
}

func edgeTriple(typ string, src, dst uuid.UUID, role string) string {
	return typ + "\x00" + src.String() + "\x00" + dst.String() + "\x00" + role
}

func (d *memData) upsertNode(label, key, name string, props map[string]any) (*Node, error) {
	if name == WildcardSentinel || key == WildcardSentinel {
		return nil, apperror.ErrValidation.WithMessagef("%q cannot be persisted as a node", WildcardSentinel)
	}
	if label == "" || key == "" {
		return nil, apperror.ErrValidation.WithMessage("node label and key are required")
	}

	if id, ok := d.nodeByKey[nodeIdentity(label, key)]; ok {
		node := d.nodes[id]
		node.Name = name
		for k, v := range props {
			node.Properties[k] = v
		}
		node.UpdatedAt = time.Now()
		return copyNode(node), nil
	}

	now := time.Now()
	node := &Node{
		ID:         uuid.New(),
		Label:      label,
		Key:        key,
		Name:       name,
		Properties: copyProps(props),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	d.nodes[node.ID] = node
	d.nodeByKey[nodeIdentity(label, key)] = node.ID
	return copyNode(node), nil
}

func (d *memData) findNode(label, key string) (*Node, error) {
	id, ok := d.nodeByKey[nodeIdentity(label, key)]
	if !ok {
		return nil, apperror.ErrNotFound.WithMessagef("node %s/%s not found", label, key)
	}
	return copyNode(d.nodes[id]), nil
}

func (d *memData) getNode(id uuid.UUID) (*Node, error) {
	node, ok := d.nodes[id]
	if !ok {
		return nil, apperror.ErrNotFound.WithMessagef("node %s not found", id)
	}
	return copyNode(node), nil
}

func (d *memData) matchNodes(f NodeFilter) ([]*Node, error) {
	keySet := map[string]bool{}
	for _, k := range f.Keys {
		keySet[k] = true
	}
	excluded := map[string]bool{}
	for _, n := range f.ExcludeNames {
		excluded[n] = true
	}

	var out []*Node
	for _, node := range d.nodes {
		if f.Label != "" && node.Label != f.Label {
			continue
		}
		if len(keySet) > 0 && !keySet[node.Key] {
			continue
		}
		if f.KeyPrefix != "" && !strings.HasPrefix(node.Key, f.KeyPrefix) {
			continue
		}
		if excluded[node.Name] {
			continue
		}
		out = append(out, copyNode(node))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (d *memData) updateNodeProps(id uuid.UUID, props map[string]any) error {
	node, ok := d.nodes[id]
	if !ok {
		return apperror.ErrNotFound.WithMessagef("node %s not found", id)
	}
	for k, v := range props {
		node.Properties[k] = v
	}
	node.UpdatedAt = time.Now()
	return nil
}

func (d *memData) deleteNode(id uuid.UUID) error {
	node, ok := d.nodes[id]
	if !ok {
		return nil
	}
	delete(d.nodes, id)
	delete(d.nodeByKey, nodeIdentity(node.Label, node.Key))

	// Cascade, as the FK does.
	for edgeID, edge := range d.edges {
		if edge.SrcID == id || edge.DstID == id {
			d.removeEdge(edgeID)
		}
	}
	return nil
}

func (d *memData) createEdge(typ string, src, dst uuid.UUID, props map[string]any) (*Edge, error) {
	if typ == "" {
		return nil, apperror.ErrValidation.WithMessage("edge type is required")
	}
	if _, ok := d.nodes[src]; !ok {
		return nil, apperror.ErrNotFound.WithMessagef("edge %s source missing", typ)
	}
	if _, ok := d.nodes[dst]; !ok {
		return nil, apperror.ErrNotFound.WithMessagef("edge %s target missing", typ)
	}

	role, _ := props["role"].(string)
	triple := edgeTriple(typ, src, dst, role)
	if _, ok := d.edgeByTriple[triple]; ok {
		return nil, apperror.ErrDuplicate.WithMessagef("edge %s %s -> %s already exists", typ, src, dst)
	}

	edge := &Edge{
		ID:         uuid.New(),
		Type:       typ,
		SrcID:      src,
		DstID:      dst,
		Properties: copyProps(props),
		CreatedAt:  time.Now(),
	}
	d.edges[edge.ID] = edge
	d.edgeByTriple[triple] = edge.ID
	d.edgeOrder = append(d.edgeOrder, edge.ID)
	return copyEdge(edge), nil
}

func (d *memData) matchEdges(p EdgePattern) ([]*Edge, error) {
	var out []*Edge
	for _, id := range d.edgeOrder {
		edge, ok := d.edges[id]
		if !ok {
			continue
		}
		if edgeMatches(edge, p) {
			out = append(out, copyEdge(edge))
		}
	}
	return out, nil
}

func (d *memData) updateEdgeProps(id uuid.UUID, props map[string]any) error {
	edge, ok := d.edges[id]
	if !ok {
		return apperror.ErrNotFound.WithMessagef("edge %s not found", id)
	}

	oldTriple := edgeTriple(edge.Type, edge.SrcID, edge.DstID, edge.Role())
	for k, v := range props {
		edge.Properties[k] = v
	}
	newTriple := edgeTriple(edge.Type, edge.SrcID, edge.DstID, edge.Role())
	if newTriple != oldTriple {
		delete(d.edgeByTriple, oldTriple)
		d.edgeByTriple[newTriple] = id
	}
	return nil
}

func (d *memData) deleteEdge(id uuid.UUID) error {
	d.removeEdge(id)
	return nil
}

func (d *memData) deleteEdges(p EdgePattern) (int, error) {
	if p.Type == "" && p.TypePrefix == "" && p.SrcID == nil && p.DstID == nil {
		return 0, apperror.ErrValidation.WithMessage("refusing unbounded edge delete")
	}

	var doomed []uuid.UUID
	for id, edge := range d.edges {
		if edgeMatches(edge, p) {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		d.removeEdge(id)
	}
	return len(doomed), nil
}

func (d *memData) removeEdge(id uuid.UUID) {
	edge, ok := d.edges[id]
	if !ok {
		return
	}
	delete(d.edges, id)
	triple := edgeTriple(edge.Type, edge.SrcID, edge.DstID, edge.Role())
	// Duplicate edges loaded from legacy data can share a triple; only drop
	// the mapping if it points at the edge being removed.
	if d.edgeByTriple[triple] == id {
		delete(d.edgeByTriple, triple)
	}
}

func (d *memData) clone() *memData {
	out := newMemData()
	for id, node := range d.nodes {
		out.nodes[id] = copyNode(node)
	}
	for k, v := range d.nodeByKey {
		out.nodeByKey[k] = v
	}
	for id, edge := range d.edges {
		out.edges[id] = copyEdge(edge)
	}
	for k, v := range d.edgeByTriple {
		out.edgeByTriple[k] = v
	}
	out.edgeOrder = append([]uuid.UUID(nil), d.edgeOrder...)
	return out
}

func edgeMatches(e *Edge, p EdgePattern) bool {
	if p.Type != "" && e.Type != p.Type {
		return false
	}
	if p.TypePrefix != "" && !strings.HasPrefix(e.Type, p.TypePrefix) {
		return false
	}
	if p.SrcID != nil && e.SrcID != *p.SrcID {
		return false
	}
	if p.DstID != nil && e.DstID != *p.DstID {
		return false
	}
	for k, want := range p.PropEquals {
		got, _ := e.Properties[k].(string)
		if got != want {
			return false
		}
	}
	return true
}

func copyNode(n *Node) *Node {
	out := *n
	out.Properties = copyProps(n.Properties)
	return &out
}

func copyEdge(e *Edge) *Edge {
	out := *e
	out.Properties = copyProps(e.Properties)
	return &out
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
