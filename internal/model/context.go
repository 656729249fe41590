package model

// PipelineContext accumulates stage results as the pipeline advances.
// It is append-only: every stage's result is recorded exactly once, error
// or not, and never mutated afterwards. A single run writes from one
// goroutine, so no locking is needed here.
type PipelineContext struct {
	results map[StageID]*StageResult
}

// NewPipelineContext returns an empty context.
func NewPipelineContext() *PipelineContext {
	return &PipelineContext{results: make(map[StageID]*StageResult, len(StageOrder))}
}

// Put records a stage result. The first write for a stage wins; repeat
// writes are ignored to preserve the append-only contract.
func (c *PipelineContext) Put(r *StageResult) {
	if r == nil {
		return
	}
	if _, exists := c.results[r.StageID]; exists {
		return
	}
	c.results[r.StageID] = r
}

// Get returns the recorded result for a stage regardless of its status.
func (c *PipelineContext) Get(id StageID) (*StageResult, bool) {
	r, ok := c.results[id]
	return r, ok
}

// GetOK returns the result for a stage only when it completed
// successfully. Error-status entries are treated as absent so downstream
// prompt builders naturally skip them.
func (c *PipelineContext) GetOK(id StageID) (*StageResult, bool) {
	r, ok := c.results[id]
	if !ok || !r.OK() {
		return nil, false
	}
	return r, true
}

// Len returns the number of recorded results.
func (c *PipelineContext) Len() int {
	return len(c.results)
}
