package lineage

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/logger"
	"github.com/teranos/catalog/types"
)

// nodeRank orders node types root first in graph output
var nodeRank = map[string]int{
	types.NodeRequirement: 0,
	types.NodeUseCase:     1,
	types.NodeTemplate:    2,
	types.NodeExecution:   3,
}

// graphEntities holds the referenced entities that resolved
type graphEntities struct {
	mu           sync.Mutex
	requirements map[string]*types.ExtractedRequirements
	useCases     map[string]*types.GeneratedUseCase
	templates    map[string]*types.AnalysisTemplate
}

// BuildLineageGraph builds the dependency graph of all executions, or of one
// epoch's when epochID is set. Referenced entities are fetched concurrently;
// those that do not resolve are dropped with a warning.
// Nodes and edges come out in a deterministic order.
func (t *Tracker) BuildLineageGraph(ctx context.Context, epochID string) (*types.LineageGraph, error) {
	execs, err := t.backend.QueryExecutions(ctx, &types.ExecutionFilter{EpochID: epochID}, 0, 0)
	if err != nil {
		return nil, err
	}

	reqIDs := make(map[string]bool)
	ucIDs := make(map[string]bool)
	tmplIDs := make(map[string]bool)
	for _, e := range execs {
		if id := types.Deref(e.RequirementsID); id != "" {
			reqIDs[id] = true
		}
		if id := types.Deref(e.UseCaseID); id != "" {
			ucIDs[id] = true
		}
		if e.TemplateID != "" {
			tmplIDs[e.TemplateID] = true
		}
	}

	ents := &graphEntities{
		requirements: make(map[string]*types.ExtractedRequirements),
		useCases:     make(map[string]*types.GeneratedUseCase),
		templates:    make(map[string]*types.AnalysisTemplate),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	for id := range reqIDs {
		id := id
		g.Go(func() error {
			req, err := t.backend.GetRequirements(gCtx, id)
			if err != nil {
				return t.tolerateMissing(err, types.NodeRequirement, id)
			}
			ents.mu.Lock()
			ents.requirements[id] = req
			ents.mu.Unlock()
			return nil
		})
	}
	for id := range ucIDs {
		id := id
		g.Go(func() error {
			uc, err := t.backend.GetUseCase(gCtx, id)
			if err != nil {
				return t.tolerateMissing(err, types.NodeUseCase, id)
			}
			ents.mu.Lock()
			ents.useCases[id] = uc
			ents.mu.Unlock()
			return nil
		})
	}
	for id := range tmplIDs {
		id := id
		g.Go(func() error {
			tmpl, err := t.backend.GetTemplate(gCtx, id)
			if err != nil {
				return t.tolerateMissing(err, types.NodeTemplate, id)
			}
			ents.mu.Lock()
			ents.templates[id] = tmpl
			ents.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	graph := assembleGraph(execs, ents)
	t.logger.Debugw("Built lineage graph",
		logger.FieldEpochID, epochID,
		"nodes", len(graph.Nodes),
		"edges", len(graph.Edges),
	)
	return graph, nil
}

// tolerateMissing logs and swallows a NotFoundError; other errors abort the build
func (t *Tracker) tolerateMissing(err error, kind, id string) error {
	if !errors.IsNotFoundError(err) {
		return err
	}
	t.logger.Warnw("Dropping unresolved lineage reference from graph",
		logger.FieldEntityType, kind,
		"ref_id", id,
	)
	return nil
}

func assembleGraph(execs []*types.Execution, ents *graphEntities) *types.LineageGraph {
	graph := &types.LineageGraph{
		Nodes: []types.LineageNode{},
		Edges: []types.LineageEdge{},
	}
	edges := make(map[types.LineageEdge]bool)

	for _, r := range ents.requirements {
		graph.Nodes = append(graph.Nodes, requirementNode(r))
	}
	for _, uc := range ents.useCases {
		graph.Nodes = append(graph.Nodes, useCaseNode(uc))
		if _, ok := ents.requirements[uc.RequirementsID]; ok {
			edges[types.LineageEdge{From: uc.RequirementsID, To: uc.ID, Relation: types.EdgeGeneratesUseCase}] = true
		}
	}
	for _, tmpl := range ents.templates {
		graph.Nodes = append(graph.Nodes, templateNode(tmpl))
		if _, ok := ents.useCases[tmpl.UseCaseID]; ok {
			edges[types.LineageEdge{From: tmpl.UseCaseID, To: tmpl.ID, Relation: types.EdgeGeneratesTemplate}] = true
		}
	}
	for _, e := range execs {
		graph.Nodes = append(graph.Nodes, executionNode(e))
		if _, ok := ents.templates[e.TemplateID]; ok {
			edges[types.LineageEdge{From: e.TemplateID, To: e.ID, Relation: types.EdgeExecutes}] = true
		}
	}

	for edge := range edges {
		graph.Edges = append(graph.Edges, edge)
	}

	sort.Slice(graph.Nodes, func(i, j int) bool {
		a, b := graph.Nodes[i], graph.Nodes[j]
		if nodeRank[a.Type] != nodeRank[b.Type] {
			return nodeRank[a.Type] < nodeRank[b.Type]
		}
		return a.ID < b.ID
	})
	sort.Slice(graph.Edges, func(i, j int) bool {
		a, b := graph.Edges[i], graph.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Relation < b.Relation
	})
	return graph
}
