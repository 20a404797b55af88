package agent

import "time"

// Observer receives loop and job events, typically for metrics.
type Observer interface {
	ObserveModel(success bool, elapsed time.Duration)
	ObserveLoop(outcome string, iterations int)
	ObserveJob(status string)
}

type nopObserver struct{}

func (nopObserver) ObserveModel(bool, time.Duration) {}
func (nopObserver) ObserveLoop(string, int)          {}
func (nopObserver) ObserveJob(string)                {}
