package observability

import "github.com/ghalamif/sensorhub/internal/ports"

// Nop discards everything. Components fall back to it when no backend is wired.
type Nop struct{}

func (Nop) LogInfo(string, ...ports.Field)            {}
func (Nop) LogWarn(string, error, ...ports.Field)     {}
func (Nop) LogError(string, error, ...ports.Field)    {}
func (Nop) LogCritical(string, error, ...ports.Field) {}
func (Nop) IncCounter(string, float64)                {}
func (Nop) ObserveLatency(string, float64)            {}
func (Nop) SetGauge(string, float64)                  {}
func (Nop) RecordRejected(string, error)              {}

var _ ports.Observability = Nop{}
