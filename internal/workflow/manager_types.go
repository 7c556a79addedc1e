package workflow

import (
	"log/slog"

	"viralforge/internal/stage"
	"viralforge/internal/store"
)

// StageSet bundles the concrete stage handlers the manager orchestrates.
type StageSet struct {
	Analyst    stage.Handler
	Strategist stage.Handler
	Producer   stage.Handler
}

type pipelineStage struct {
	name    string
	kind    store.TaskKind
	handler stage.Handler
}

type laneKind string

const (
	laneAnalysis   laneKind = "analysis"
	laneProduction laneKind = "production"
)

type laneState struct {
	kind         laneKind
	name         string
	stages       []pipelineStage
	kinds        []store.TaskKind
	stageByKind  map[store.TaskKind]pipelineStage
	logger       *slog.Logger
	runReclaimer bool
}

func (l *laneState) finalize() {
	if l == nil {
		return
	}
	l.stageByKind = make(map[store.TaskKind]pipelineStage, len(l.stages))
	l.kinds = make([]store.TaskKind, 0, len(l.stages))
	for _, stg := range l.stages {
		l.stageByKind[stg.kind] = stg
		l.kinds = append(l.kinds, stg.kind)
	}
}

func (l *laneState) stageForKind(kind store.TaskKind) (pipelineStage, bool) {
	if l == nil {
		return pipelineStage{}, false
	}
	stg, ok := l.stageByKind[kind]
	return stg, ok
}
