package service

import (
	"sync"

	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/domain/entity"
)

var _ output.StepRegistry = (*StepRegistryImpl)(nil)

// StepRegistryImpl keeps steps in registration order so the manifest is
// stable. Registering an existing id replaces the step in place.
type StepRegistryImpl struct {
	mu    sync.RWMutex
	steps map[string]output.StepPort
	order []string
}

func NewStepRegistry(steps ...output.StepPort) *StepRegistryImpl {
	r := &StepRegistryImpl{
		steps: make(map[string]output.StepPort, len(steps)),
	}
	for _, s := range steps {
		r.Register(s)
	}
	return r
}

func (r *StepRegistryImpl) Register(step output.StepPort) {
	id := step.Definition().StepID

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[id]; !exists {
		r.order = append(r.order, id)
	}
	r.steps[id] = step
}

func (r *StepRegistryImpl) Get(stepID string) (output.StepPort, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	step, ok := r.steps[stepID]
	return step, ok
}

func (r *StepRegistryImpl) All() []output.StepPort {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]output.StepPort, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.steps[id])
	}
	return result
}

func (r *StepRegistryImpl) Definitions() []entity.StepDefinition {
	steps := r.All()
	result := make([]entity.StepDefinition, 0, len(steps))
	for _, s := range steps {
		result = append(result, s.Definition())
	}
	return result
}
