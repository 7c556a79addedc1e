package workflow

import "viralforge/internal/store"

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	analysis := &laneState{kind: laneAnalysis, name: "analysis"}
	production := &laneState{kind: laneProduction, name: "production"}

	if set.Analyst != nil {
		analysis.stages = append(analysis.stages, pipelineStage{
			name:    "analyst",
			kind:    store.TaskAnalyze,
			handler: set.Analyst,
		})
	}
	if set.Strategist != nil {
		analysis.stages = append(analysis.stages, pipelineStage{
			name:    "strategist",
			kind:    store.TaskStrategize,
			handler: set.Strategist,
		})
	}
	if set.Producer != nil {
		production.stages = append(production.stages, pipelineStage{
			name:    "producer",
			kind:    store.TaskProduce,
			handler: set.Producer,
		})
	}

	lanes := make(map[laneKind]*laneState)
	order := make([]laneKind, 0, 2)
	for _, lane := range []*laneState{analysis, production} {
		if len(lane.stages) == 0 {
			continue
		}
		lane.finalize()
		lanes[lane.kind] = lane
		order = append(order, lane.kind)
	}
	// Stale running tasks are reclaimed table-wide, so one lane is enough.
	if len(order) > 0 {
		lanes[order[0]].runReclaimer = true
	}

	m.mu.Lock()
	m.lanes = lanes
	m.laneOrder = order
	m.mu.Unlock()
}
