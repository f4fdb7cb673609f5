// Package infer adapts an ONNX Runtime session to the pipeline's Engine
// interface.
package infer

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/videre-labs/videre/internal/vision/postprocess"
	"github.com/videre-labs/videre/internal/vision/preprocess"
)

// Standard detector graph names for single-input YOLO-family exports.
const (
	inputName  = "images"
	outputName = "output0"
)

// Initialize prepares the shared ONNX Runtime environment. libraryPath
// points at the onnxruntime shared library; empty uses the platform
// default search path. Call once before creating engines.
func Initialize(libraryPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// Shutdown tears down the shared environment. Call after every engine
// is closed.
func Shutdown() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// ONNXEngine runs a detection model through ONNX Runtime. It is not
// safe for concurrent Infer calls; the pipeline's single consumer
// goroutine is the intended caller.
type ONNXEngine struct {
	session *ort.DynamicAdvancedSession
	side    int
}

// NewONNXEngine loads the model at modelPath, expecting a single
// "images" input of shape (1, 3, side, side) and a single "output0"
// prediction tensor. Initialize must have been called.
func NewONNXEngine(modelPath string, side int) (*ONNXEngine, error) {
	if side <= 0 {
		return nil, fmt.Errorf("model input side must be positive, got %d", side)
	}
	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	return &ONNXEngine{session: session, side: side}, nil
}

// Infer runs one forward pass and returns the prediction as a dense
// (rows x anchors) tensor.
func (e *ONNXEngine) Infer(ctx context.Context, blob preprocess.Blob) (postprocess.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return postprocess.Tensor{}, err
	}
	if blob.Side != e.side {
		return postprocess.Tensor{}, fmt.Errorf("blob side %d does not match engine side %d", blob.Side, e.side)
	}
	if blob.Empty() {
		return postprocess.Tensor{}, fmt.Errorf("empty input blob")
	}

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(e.side), int64(e.side)), blob.Data)
	if err != nil {
		return postprocess.Tensor{}, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	// Let the runtime allocate the output so dynamic anchor counts work
	// without knowing the model's exact export shape.
	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{input}, outputs); err != nil {
		return postprocess.Tensor{}, fmt.Errorf("run session: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return postprocess.Tensor{}, fmt.Errorf("unexpected output type %T", outputs[0])
	}

	shape := out.GetShape()
	if len(shape) != 3 || shape[0] != 1 {
		return postprocess.Tensor{}, fmt.Errorf("unexpected output shape %v, want (1, rows, anchors)", shape)
	}
	rows := int(shape[1])
	cols := int(shape[2])

	// Copy out of the runtime-owned buffer before Destroy.
	data := make([]float32, rows*cols)
	copy(data, out.GetData())

	return postprocess.Tensor{Rows: rows, Cols: cols, Data: data}, nil
}

// Close releases the session.
func (e *ONNXEngine) Close() error {
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	return nil
}
