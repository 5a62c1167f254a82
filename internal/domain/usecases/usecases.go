// Package usecases contains application business rules.
// Use cases orchestrate entities and depend only on port interfaces.
package usecases

import "time"

// Recorder receives pipeline measurements. *metrics.Collector satisfies it.
type Recorder interface {
	DocumentIngested(ok bool, chunks int)
	ObserveQuery(d time.Duration)
	Answer(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) DocumentIngested(bool, int)  {}
func (nopRecorder) ObserveQuery(time.Duration) {}
func (nopRecorder) Answer(bool)                {}

func orNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
