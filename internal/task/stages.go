package task

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// Stage names the pipeline stage an audit entry belongs to. Stage names
// mirror the status a task holds while the stage runs.
type Stage string

const (
	StageExecuting    Stage = "executing"
	StageVerification Stage = "awaiting_verification"
	StageFactCheck    Stage = "awaiting_fact_check"
	StageApproval     Stage = "awaiting_approval"
	StageRejected     Stage = "rejected"
	StageDenied       Stage = "denied"
	StageTimedOut     Stage = "timed_out"
	StageCancelled    Stage = "cancelled"
	StageDispatched   Stage = "dispatched"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// stageDef declares a stage and the stages that must come before it within a
// single attempt. The graph is validated and linearized at init time.
type stageDef struct {
	Name  Stage
	After []Stage
}

var stageGraph = []stageDef{
	{Name: StageExecuting},
	{Name: StageVerification, After: []Stage{StageExecuting}},
	{Name: StageFactCheck, After: []Stage{StageVerification}},
	{Name: StageApproval, After: []Stage{StageFactCheck}},
	{Name: StageRejected, After: []Stage{StageVerification, StageFactCheck}},
	{Name: StageDenied, After: []Stage{StageApproval}},
	{Name: StageTimedOut, After: []Stage{StageApproval}},
	{Name: StageCancelled, After: []Stage{StageApproval}},
	{Name: StageDispatched, After: []Stage{StageApproval}},
	{Name: StageCompleted, After: []Stage{StageDispatched}},
	{Name: StageFailed, After: []Stage{StageExecuting, StageRejected, StageTimedOut, StageDispatched}},
}

var stageIndex map[Stage]int

func init() {
	order, err := linearizeStages()
	if err != nil {
		panic(err)
	}
	stageIndex = make(map[Stage]int, len(order))
	for i, s := range order {
		stageIndex[s] = i
	}
}

// linearizeStages topologically sorts the stage graph, rejecting cycles and
// references to undeclared stages.
func linearizeStages() ([]Stage, error) {
	declared := make(map[Stage]bool, len(stageGraph))
	for _, def := range stageGraph {
		if declared[def.Name] {
			return nil, fmt.Errorf("stage %q declared twice", def.Name)
		}
		declared[def.Name] = true
	}

	var edges []toposort.Edge
	for _, def := range stageGraph {
		if len(def.After) == 0 {
			edges = append(edges, toposort.Edge{nil, string(def.Name)})
			continue
		}
		for _, prev := range def.After {
			if !declared[prev] {
				return nil, fmt.Errorf("stage %q depends on undeclared stage %q", def.Name, prev)
			}
			edges = append(edges, toposort.Edge{string(prev), string(def.Name)})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("stage graph contains cycle: %w", err)
	}

	order := make([]Stage, 0, len(sorted))
	for _, v := range sorted {
		if v != nil {
			order = append(order, Stage(v.(string)))
		}
	}
	if len(order) != len(stageGraph) {
		return nil, fmt.Errorf("stage linearization lost stages: got %d of %d", len(order), len(stageGraph))
	}
	return order, nil
}

// StageIndex returns the position of a stage in the canonical pipeline order.
// Within one attempt, audit entries always advance through increasing stage
// indexes.
func StageIndex(s Stage) int {
	i, ok := stageIndex[s]
	if !ok {
		return -1
	}
	return i
}
