// Package taxonomy audits the Part/Group hierarchy. A Group belongs to
// exactly one Part; when legacy data has several Parts claiming the same
// Group, the auditor keeps the claim carrying the most Variables and severs
// the rest. Variables themselves are never moved or duplicated.
package taxonomy

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/modelcurator/metagraph/domain/graphstore"
	"github.com/modelcurator/metagraph/internal/config"
	"github.com/modelcurator/metagraph/pkg/apperror"
	"github.com/modelcurator/metagraph/pkg/logger"
	"github.com/modelcurator/metagraph/pkg/metrics"
)

type Service struct {
	store    graphstore.Store
	log      *slog.Logger
	pageSize int
}

func NewService(store graphstore.Store, log *slog.Logger, cfg *config.Config) *Service {
	return &Service{
		store:    store,
		log:      log.With(logger.Scope("taxonomy.svc")),
		pageSize: cfg.Sweep.PageSize,
	}
}

// GroupRepair records one resolved conflict, with the counts the decision
// used. The majority choice is a heuristic, not a certainty of user intent,
// so every repair is reported for auditability.
type GroupRepair struct {
	GroupID      uuid.UUID      `json:"group_id"`
	GroupName    string         `json:"group_name"`
	ChosenPart   string         `json:"chosen_part"`
	RemovedParts []string       `json:"removed_parts"`
	Counts       map[string]int `json:"counts"`
	Flag         string         `json:"flag,omitempty"`
}

// Report is the partial-success summary of one exclusivity sweep.
type Report struct {
	Checked  int                  `json:"checked"`
	Repaired int                  `json:"repaired"`
	Removed  int                  `json:"removed"`
	Groups   []GroupRepair        `json:"groups,omitempty"`
	Errors   []apperror.ItemError `json:"errors,omitempty"`
}

// AuditGroupPartExclusivity finds every Group claimed by more than one Part
// and keeps only the strongest claim. A conflict where no candidate reaches
// any Variable is still resolved by name but flagged for manual review. One
// group failing never aborts the sweep.
func (s *Service) AuditGroupPartExclusivity(ctx context.Context) (Report, error) {
	var report Report

	for offset := 0; ; offset += s.pageSize {
		groups, err := s.store.MatchNodes(ctx, graphstore.NodeFilter{
			Label:  GroupLabel,
			Limit:  s.pageSize,
			Offset: offset,
		})
		if err != nil {
			return report, err
		}
		if len(groups) == 0 {
			break
		}

		for _, group := range groups {
			report.Checked++
			repair, removed, err := s.repairGroup(ctx, group)
			if err != nil {
				metrics.SweepFailures.WithLabelValues("group_exclusivity").Inc()
				report.Errors = append(report.Errors, apperror.ItemError{
					ItemID: group.ID.String(),
					Cause:  err.Error(),
				})
				continue
			}
			if repair == nil {
				continue
			}
			report.Repaired++
			report.Removed += removed
			report.Groups = append(report.Groups, *repair)
			metrics.GroupsRepaired.Inc()
		}

		if len(groups) < s.pageSize {
			break
		}
	}

	s.log.Info("audited group-part exclusivity",
		slog.Int("checked", report.Checked),
		slog.Int("repaired", report.Repaired),
		slog.Int("removed", report.Removed),
		slog.Int("failed", len(report.Errors)))

	return report, nil
}

// repairGroup resolves one group's claims. Returns nil when the group is
// already exclusive.
func (s *Service) repairGroup(ctx context.Context, group *graphstore.Node) (*GroupRepair, int, error) {
	claims, err := s.store.MatchEdges(ctx, graphstore.EdgePattern{
		Type:  HasGroupEdgeType,
		DstID: &group.ID,
	})
	if err != nil {
		return nil, 0, err
	}

	edgesByPart := make(map[uuid.UUID][]uuid.UUID)
	for _, e := range claims {
		edgesByPart[e.SrcID] = append(edgesByPart[e.SrcID], e.ID)
	}
	if len(edgesByPart) <= 1 {
		return nil, 0, nil
	}

	groupVars, err := s.variableSet(ctx, group.ID)
	if err != nil {
		return nil, 0, err
	}

	candidates := make([]Candidate, 0, len(edgesByPart))
	counts := make(map[string]int, len(edgesByPart))
	for partID := range edgesByPart {
		part, err := s.store.GetNode(ctx, partID)
		if err != nil {
			return nil, 0, err
		}
		count, err := s.sharedVariableCount(ctx, partID, groupVars)
		if err != nil {
			return nil, 0, err
		}
		candidates = append(candidates, Candidate{
			PartID:        partID,
			PartName:      part.Name,
			VariableCount: count,
		})
		counts[part.Name] = count
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].PartName < candidates[j].PartName })

	winner, err := ChooseOwner(candidates)
	if err != nil {
		return nil, 0, err
	}

	repair := &GroupRepair{
		GroupID:    group.ID,
		GroupName:  group.Name,
		ChosenPart: winner.PartName,
		Counts:     counts,
	}
	if winner.VariableCount == 0 {
		repair.Flag = FlagInvariantViolation
		s.log.Warn("group conflict resolved without variable signal",
			slog.String("group", group.Name),
			slog.String("chosen_part", winner.PartName))
	}

	removed := 0
	for _, c := range candidates {
		if c.PartID == winner.PartID {
			continue
		}
		for _, edgeID := range edgesByPart[c.PartID] {
			if err := s.store.DeleteEdge(ctx, edgeID); err != nil {
				return nil, removed, err
			}
			removed++
		}
		repair.RemovedParts = append(repair.RemovedParts, c.PartName)
	}
	return repair, removed, nil
}

// variableSet collects the Variables directly under a node.
func (s *Service) variableSet(ctx context.Context, id uuid.UUID) (map[uuid.UUID]struct{}, error) {
	edges, err := s.store.MatchEdges(ctx, graphstore.EdgePattern{
		Type:  HasVariableEdgeType,
		SrcID: &id,
	})
	if err != nil {
		return nil, err
	}
	set := make(map[uuid.UUID]struct{}, len(edges))
	for _, e := range edges {
		set[e.DstID] = struct{}{}
	}
	return set, nil
}

// sharedVariableCount counts the part's Variables that the group also
// reaches, i.e. the Variables actually living on the Part -> Group path.
func (s *Service) sharedVariableCount(ctx context.Context, partID uuid.UUID, groupVars map[uuid.UUID]struct{}) (int, error) {
	edges, err := s.store.MatchEdges(ctx, graphstore.EdgePattern{
		Type:  HasVariableEdgeType,
		SrcID: &partID,
	})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range edges {
		if _, ok := groupVars[e.DstID]; ok {
			count++
		}
	}
	return count, nil
}
