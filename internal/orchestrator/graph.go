package orchestrator

import (
	"fmt"
	"slices"

	"github.com/phrazzld/reelchain/internal/domain"
)

// ResourceClass names a concurrency bucket shared by every chain run.
type ResourceClass string

// Resource classes used by the pipeline.
const (
	ClassText  ResourceClass = "text"
	ClassAudio ResourceClass = "audio"
	ClassImage ResourceClass = "image"
)

// TaskDefinition is an immutable node of the task graph.
type TaskDefinition struct {
	ID            domain.TaskID
	Name          string
	Prerequisites []domain.TaskID

	// SoftPrerequisites is a subset of Prerequisites that count as met when
	// they ended Failed or FailedContinuing.
	SoftPrerequisites []domain.TaskID

	// Critical tasks abort the chain run when they fail.
	Critical bool

	// ContinueOnFailure records failures as FailedContinuing.
	ContinueOnFailure bool

	Class ResourceClass

	// FanOut tasks do not hold a class slot themselves; each of their
	// sub-items acquires one instead.
	FanOut bool
}

func (d TaskDefinition) isSoft(id domain.TaskID) bool {
	return slices.Contains(d.SoftPrerequisites, id)
}

// Graph is a validated task graph with a fixed execution order.
type Graph struct {
	defs  map[domain.TaskID]TaskDefinition
	order []domain.TaskID
}

// NewGraph validates defs and computes a deterministic topological order
// (ready tasks are taken lowest id first).
func NewGraph(defs []TaskDefinition) (*Graph, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("graph: no tasks")
	}

	byID := make(map[domain.TaskID]TaskDefinition, len(defs))
	for _, d := range defs {
		if d.ID <= 0 {
			return nil, fmt.Errorf("graph: invalid task id %d", d.ID)
		}
		if _, dup := byID[d.ID]; dup {
			return nil, fmt.Errorf("graph: duplicate task id %d", d.ID)
		}
		if d.Class == "" {
			return nil, fmt.Errorf("graph: task %d has no resource class", d.ID)
		}
		byID[d.ID] = d
	}

	indeg := make(map[domain.TaskID]int, len(defs))
	outgoing := make(map[domain.TaskID][]domain.TaskID, len(defs))
	for _, d := range defs {
		seen := make(map[domain.TaskID]bool, len(d.Prerequisites))
		for _, p := range d.Prerequisites {
			if p == d.ID {
				return nil, fmt.Errorf("graph: task %d depends on itself", d.ID)
			}
			if _, ok := byID[p]; !ok {
				return nil, fmt.Errorf("graph: task %d depends on unknown task %d", d.ID, p)
			}
			if seen[p] {
				return nil, fmt.Errorf("graph: task %d lists prerequisite %d twice", d.ID, p)
			}
			seen[p] = true
			indeg[d.ID]++
			outgoing[p] = append(outgoing[p], d.ID)
		}
		for _, s := range d.SoftPrerequisites {
			if !seen[s] {
				return nil, fmt.Errorf("graph: soft prerequisite %d of task %d is not a prerequisite", s, d.ID)
			}
		}
	}

	var ready []domain.TaskID
	for id := range byID {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]domain.TaskID, 0, len(defs))
	for len(ready) > 0 {
		slices.Sort(ready)
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, m := range outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				ready = append(ready, m)
			}
		}
	}
	if len(order) != len(defs) {
		return nil, fmt.Errorf("graph: cycle detected among %d tasks", len(defs)-len(order))
	}

	return &Graph{defs: byID, order: order}, nil
}

// Order returns the execution order.
func (g *Graph) Order() []domain.TaskID {
	return slices.Clone(g.order)
}

// Definition returns the task definition for id.
func (g *Graph) Definition(id domain.TaskID) (TaskDefinition, bool) {
	d, ok := g.defs[id]
	return d, ok
}

// Len is the number of tasks.
func (g *Graph) Len() int {
	return len(g.order)
}

// PipelineDefinitions is the content pipeline's task table.
func PipelineDefinitions() []TaskDefinition {
	return []TaskDefinition{
		{ID: 1, Name: "topic", Class: ClassText, Critical: true},
		{ID: 2, Name: "trends", Class: ClassText, Prerequisites: []domain.TaskID{1}},
		{ID: 3, Name: "outline", Class: ClassText, Prerequisites: []domain.TaskID{2}},
		{ID: 4, Name: "script", Class: ClassText, Prerequisites: []domain.TaskID{3}, Critical: true},
		{ID: 5, Name: "hooks", Class: ClassText, Prerequisites: []domain.TaskID{1, 2, 4}},
		{ID: 6, Name: "keywords", Class: ClassText, Prerequisites: []domain.TaskID{2, 4, 5}},
		{ID: 7, Name: "description", Class: ClassText, Prerequisites: []domain.TaskID{2, 4, 5}},
		{ID: 8, Name: "audio", Class: ClassAudio, Prerequisites: []domain.TaskID{4}, ContinueOnFailure: true},
		{ID: 9, Name: "sentiment", Class: ClassImage, Prerequisites: []domain.TaskID{4, 8}, SoftPrerequisites: []domain.TaskID{8}},
		{ID: 10, Name: "storyboard", Class: ClassImage, Prerequisites: []domain.TaskID{9}, FanOut: true},
		{ID: 11, Name: "images", Class: ClassImage, Prerequisites: []domain.TaskID{8, 10}, SoftPrerequisites: []domain.TaskID{8}, FanOut: true},
	}
}

// PipelineGraph returns the validated pipeline graph.
func PipelineGraph() *Graph {
	g, err := NewGraph(PipelineDefinitions())
	if err != nil {
		panic(err)
	}
	return g
}
