package ports

import "time"

type Policy struct {
	StaleThreshold      time.Duration `yaml:"stale_threshold"`
	MonitorInterval     time.Duration `yaml:"monitor_interval"`
	HistoryCapacity     int           `yaml:"history_capacity"`
	VisualizationWindow int           `yaml:"visualization_window"`

	FallbackDelay time.Duration `yaml:"fallback_delay"` // permission-denied → simulation
	AutoFallback  *bool         `yaml:"auto_fallback"`

	IdleSleep       time.Duration `yaml:"idle_sleep"`
	MaxForwardQueue int           `yaml:"max_forward_queue"`
	MaxForwardBatch int           `yaml:"max_forward_batch"`
}

// FallbackEnabled reports whether a permission failure should switch to
// simulation. Unset means enabled.
func (p Policy) FallbackEnabled() bool {
	return p.AutoFallback == nil || *p.AutoFallback
}
