package provider

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// InitializeORT loads the onnxruntime shared library once per process.
func InitializeORT(libPath string) error {
	ortOnce.Do(func() {
		if libPath == "" {
			libPath = defaultORTLibrary()
		}
		ort.SetSharedLibraryPath(libPath)
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

func defaultORTLibrary() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "/usr/lib/libonnxruntime.so"
	}
}

// ONNXProvider runs a Q-network checkpoint and returns the argmax action. Tensors are
// allocated per call so one session serves concurrent episodes.
type ONNXProvider struct {
	id        string
	session   *ort.DynamicAdvancedSession
	inputSize int
	actionDim int
}

// NewONNXProvider opens path. inputSize and actionDim are used when the graph leaves
// those dimensions symbolic.
func NewONNXProvider(path string, cfg Config) (*ONNXProvider, error) {
	if err := InitializeORT(cfg.ONNXLibraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("%s has %d inputs and %d outputs", path, len(inputs), len(outputs))
	}
	inName, outName := inputs[0].Name, outputs[0].Name
	if cfg.InputName != "" {
		inName = cfg.InputName
	}
	if cfg.OutputName != "" {
		outName = cfg.OutputName
	}

	inputSize := lastDim(inputs[0].Dimensions, cfg.InputSize)
	actionDim := lastDim(outputs[0].Dimensions, cfg.ActionDim)
	if inputSize <= 0 || actionDim <= 0 {
		return nil, fmt.Errorf("%s: cannot determine input size (%d) or action dim (%d)", path, inputSize, actionDim)
	}

	session, err := ort.NewDynamicAdvancedSession(path, []string{inName}, []string{outName}, nil)
	if err != nil {
		return nil, fmt.Errorf("create session for %s: %w", path, err)
	}
	return &ONNXProvider{id: path, session: session, inputSize: inputSize, actionDim: actionDim}, nil
}

func lastDim(shape ort.Shape, fallback int) int {
	if len(shape) == 0 {
		return fallback
	}
	if d := shape[len(shape)-1]; d > 0 {
		return int(d)
	}
	return fallback
}

func (p *ONNXProvider) ID() string { return p.id }

func (p *ONNXProvider) InputSize() int { return p.inputSize }

func (p *ONNXProvider) Predict(ctx context.Context, state []float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(state) != p.inputSize {
		return 0, fmt.Errorf("state length %d, want %d", len(state), p.inputSize)
	}

	data := make([]float32, len(state))
	for i, v := range state {
		data[i] = float32(v)
	}
	input, err := ort.NewTensor(ort.NewShape(1, int64(p.inputSize)), data)
	if err != nil {
		return 0, fmt.Errorf("input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(p.actionDim)))
	if err != nil {
		return 0, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	if err := p.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}
	q := output.GetData()
	scores := make([]float64, len(q))
	for i, v := range q {
		scores[i] = float64(v)
	}
	return Argmax(scores), nil
}

func (p *ONNXProvider) Close() error {
	if p.session != nil {
		return p.session.Destroy()
	}
	return nil
}
