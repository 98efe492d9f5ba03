package world

type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Nodes        int `json:"nodes"`
	RunningNodes int `json:"running_nodes"`
	Observers    int `json:"observers"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS         float64 `json:"step_ms"`
	CyclesThisTick int     `json:"cycles_this_tick"`
}

type QueueDepths struct {
	Place  int `json:"place"`
	Remove int `json:"remove"`
	Access int `json:"access"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
