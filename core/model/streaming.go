package model

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Batch represents a data batch for streaming learning
type Batch struct {
	X mat.Matrix // Feature matrix
	Y mat.Matrix // Target matrix
}

// StreamingEstimator provides channel-based streaming learning interface
type StreamingEstimator interface {
	IncrementalEstimator

	// FitStream trains the model from a data stream
	// Continues learning until the context is canceled or the channel is closed
	FitStream(ctx context.Context, dataChan <-chan *Batch) error
}
