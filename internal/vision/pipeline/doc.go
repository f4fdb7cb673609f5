// Package pipeline wires the detection stages into a two-goroutine
// processing flow: a producer acquiring frames into a bounded queue and
// a consumer running preprocess, inference, decode, and tracking.
//
// The pipeline does not own domain logic. It delegates to the stage
// packages and to adapter sinks (rendering, persistence), and is the
// only place that knows about goroutines and the queue.
package pipeline
