// Package expand runs the sample-expansion stage: the goroutine sitting
// between the DataQueue's writer branch and the CircularBuffer, turning
// each PollingSample into one BufferedReading per tag value.
package expand

import (
	"context"

	"scadalink/internal/logging"
	"scadalink/internal/model"
)

// Sink is the subset of ringbuffer.CircularBuffer the expansion stage
// writes to.
type Sink interface {
	Put(item model.BufferedReading)
}

// Run drains source (a Distributor output's channel, the "writer" branch)
// until ctx is done or the channel is closed, expanding every sample into
// sink. A panic or error while processing one sample is recovered and
// logged rather than breaking the loop, since one malformed sample must
// never stop every other group's readings from reaching the historian.
func Run(ctx context.Context, source <-chan model.PollingSample, sink Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-source:
			if !ok {
				return
			}
			processSample(sample, sink)
		}
	}
}

func processSample(sample model.PollingSample, sink Sink) {
	defer func() {
		if r := recover(); r != nil {
			logging.Debug("BUFFER", "recovered panic expanding sample for group %s: %v", sample.GroupID, r)
		}
	}()
	for _, reading := range sample.Expand() {
		sink.Put(reading)
	}
}
