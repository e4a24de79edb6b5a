package detector

import (
	"context"
	"image"
	"math"
	"os"
	"sync"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-multiview/images"
	"github.com/nvr-ai/go-multiview/labels"
	"github.com/nvr-ai/go-multiview/models/postprocess"
)

// Provider selects the ONNX Runtime execution provider.
type Provider string

const (
	// ProviderCPU runs on the default CPU provider.
	ProviderCPU Provider = "cpu"
	// ProviderCUDA runs on an NVIDIA GPU.
	ProviderCUDA Provider = "cuda"
	// ProviderCoreML runs on Apple CoreML.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO runs on Intel OpenVINO.
	ProviderOpenVINO Provider = "openvino"
)

// YOLOConfig configures an ultralytics-style YOLO detector exported to ONNX.
type YOLOConfig struct {
	// ModelPath is the .onnx file.
	ModelPath string `yaml:"path" toml:"path"`
	// SharedLibraryPath is the onnxruntime shared library.
	SharedLibraryPath string `yaml:"shared_library" toml:"shared_library"`
	// Provider is the execution provider.
	Provider Provider `yaml:"provider" toml:"provider"`
	// InputSize is the square model input edge in pixels.
	InputSize int `yaml:"input_size" toml:"input_size"`
	// ConfidenceThreshold drops raw candidates before NMS.
	ConfidenceThreshold float32 `yaml:"confidence_threshold" toml:"confidence_threshold"`
	// NMS configures the suppression of overlapping candidates.
	NMS postprocess.NMSConfig `yaml:"nms" toml:"nms"`
	// IntraOpThreads parallelizes graph nodes, 0 for the runtime default.
	IntraOpThreads int `yaml:"intra_op_threads" toml:"intra_op_threads"`
	// InputName and OutputName are the graph tensor names.
	InputName  string `yaml:"input_name" toml:"input_name"`
	OutputName string `yaml:"output_name" toml:"output_name"`
	// Classes maps output indices to labels.
	Classes labels.ClassSet `yaml:"-" toml:"-"`
}

// DefaultYOLOConfig returns the configuration of the drink model.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		SharedLibraryPath:   "/usr/local/lib/libonnxruntime.so",
		Provider:            ProviderCPU,
		InputSize:           640,
		ConfidenceThreshold: 0.25,
		NMS:                 postprocess.DefaultNMSConfig(),
		IntraOpThreads:      4,
		InputName:           "images",
		OutputName:          "output0",
		Classes:             labels.DrinkClasses,
	}
}

// YOLO is an ONNX Runtime backed detector. The session and its tensors are
// pre-allocated and reused, so Detect calls are serialized internally.
type YOLO struct {
	config  YOLOConfig
	logger  *zap.Logger
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewYOLO loads the model and allocates the inference session.
//
// Arguments:
//   - config: The detector configuration.
//   - logger: Logger for load diagnostics, nil for none.
//
// Returns:
//   - *YOLO: The loaded detector. Call Close to release native resources.
//   - error: An error if the runtime or the model cannot be loaded.
func NewYOLO(config YOLOConfig, logger *zap.Logger) (*YOLO, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Classes.Len() == 0 {
		return nil, errors.New("yolo: no output classes configured")
	}
	if config.InputSize <= 0 {
		return nil, errors.Errorf("yolo: invalid input size %d", config.InputSize)
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "yolo: model not found at %s", config.ModelPath)
	}

	if !ort.IsInitialized() {
		if _, err := os.Stat(config.SharedLibraryPath); err != nil {
			return nil, errors.Wrapf(err, "ONNX Runtime library not found at %s", config.SharedLibraryPath)
		}
		ort.SetSharedLibraryPath(config.SharedLibraryPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "error initializing ORT environment")
		}
	}

	size := int64(config.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	anchors := anchorCount(config.InputSize)
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+config.Classes.Len()), int64(anchors)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := sessionOptions(config)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{config.InputName},
		[]string{config.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	logger.Info("yolo detector loaded",
		zap.String("model", config.ModelPath),
		zap.String("provider", string(config.Provider)),
		zap.Int("classes", config.Classes.Len()),
		zap.Int("anchors", anchors))

	return &YOLO{
		config:  config,
		logger:  logger,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

func sessionOptions(config YOLOConfig) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	if config.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "error setting intra-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting graph optimization level")
	}

	switch config.Provider {
	case "", ProviderCPU:
	case ProviderCoreML:
		err = options.AppendExecutionProviderCoreML(0)
	case ProviderOpenVINO:
		err = options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		})
	case ProviderCUDA:
		var cuda *ort.CUDAProviderOptions
		cuda, err = ort.NewCUDAProviderOptions()
		if err == nil {
			defer cuda.Destroy()
			err = options.AppendExecutionProviderCUDA(cuda)
		}
	default:
		err = errors.Errorf("unsupported execution provider %q", config.Provider)
	}
	if err != nil {
		options.Destroy()
		return nil, errors.Wrapf(err, "error enabling %s", config.Provider)
	}
	return options, nil
}

// anchorCount returns the number of prediction anchors of a YOLOv8/v11 head
// for a square input: one per cell of the stride 8, 16 and 32 grids.
func anchorCount(inputSize int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := inputSize / stride
		n += g * g
	}
	return n
}

// Detect runs the model on img and returns detections in img coordinates.
func (y *YOLO) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	if y.session == nil {
		return nil, errors.New("yolo: detector closed")
	}

	letterbox := fillInput(img, y.config.InputSize, y.input.GetData())
	if err := y.session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	raw, err := DecodeYOLOOutput(y.output.GetData(), y.config.Classes.Len(), y.config.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	kept := postprocess.ApplyNMS(raw, y.config.NMS)

	return toDetections(kept, letterbox, img.Bounds(), y.config.Classes), nil
}

// Close releases the session and tensors.
func (y *YOLO) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.input != nil {
		y.input.Destroy()
		y.input = nil
	}
	if y.output != nil {
		y.output.Destroy()
		y.output = nil
	}
	if y.session != nil {
		err := y.session.Destroy()
		y.session = nil
		return err
	}
	return nil
}

// fillInput letterboxes img into a planar RGB float tensor normalized to [0,1].
func fillInput(img image.Image, size int, dst []float32) images.Letterbox {
	canvas, letterbox := images.LetterboxImage(img, size, size)
	channel := size * size
	red := dst[0:channel]
	green := dst[channel : channel*2]
	blue := dst[channel*2 : channel*3]

	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := canvas.RGBAAt(x, y)
			red[i] = float32(c.R) / 255.0
			green[i] = float32(c.G) / 255.0
			blue[i] = float32(c.B) / 255.0
			i++
		}
	}
	return letterbox
}

// DecodeYOLOOutput decodes a [4+classes, anchors] YOLOv8/v11 head output.
//
// Each anchor column holds the box centre, width and height followed by one
// score per class. The column is transposed into a row per anchor before
// decoding.
//
// Arguments:
//   - output: The flat output tensor data.
//   - numClasses: Number of classes in the head.
//   - confThreshold: Candidates scoring below it are dropped.
//
// Returns:
//   - []postprocess.Result: Candidates in model-input coordinates.
//   - error: An error if the output length does not match the head layout.
func DecodeYOLOOutput(output []float32, numClasses int, confThreshold float32) ([]postprocess.Result, error) {
	rows := 4 + numClasses
	if numClasses <= 0 || len(output) == 0 || len(output)%rows != 0 {
		return nil, errors.Errorf("yolo: output of %d values does not fit %d classes", len(output), numClasses)
	}
	anchors := len(output) / rows

	t := tensor.New(
		tensor.WithShape(rows, anchors),
		tensor.WithBacking(append([]float32(nil), output...)),
	)
	if err := t.T(); err != nil {
		return nil, errors.Wrap(err, "yolo: transpose output")
	}
	if err := t.Transpose(); err != nil {
		return nil, errors.Wrap(err, "yolo: transpose output")
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.New("yolo: unexpected output dtype")
	}

	var results []postprocess.Result
	for a := 0; a < anchors; a++ {
		row := data[a*rows : (a+1)*rows]

		classID := -1
		best := float32(-math.MaxFloat32)
		for c, score := range row[4:] {
			if math32.IsNaN(score) {
				continue
			}
			if score > best {
				best = score
				classID = c
			}
		}
		if classID < 0 || best < confThreshold {
			continue
		}

		cx, cy := float64(row[0]), float64(row[1])
		hw, hh := float64(math32.Abs(row[2]))/2, float64(math32.Abs(row[3]))/2
		results = append(results, postprocess.Result{
			Box:   images.Rect{X1: cx - hw, Y1: cy - hh, X2: cx + hw, Y2: cy + hh},
			Score: best,
			Class: classID,
		})
	}
	return results, nil
}

// toDetections maps kept candidates back to source-image coordinates.
func toDetections(results []postprocess.Result, letterbox images.Letterbox, bounds image.Rectangle, classes labels.ClassSet) []Detection {
	frame := images.FromRectangle(bounds)
	out := make([]Detection, 0, len(results))
	for _, r := range results {
		name, err := classes.Name(r.Class)
		if err != nil {
			continue
		}
		box := letterbox.Unmap(r.Box)
		box = images.Rect{
			X1: math.Max(box.X1, frame.X1),
			Y1: math.Max(box.Y1, frame.Y1),
			X2: math.Min(box.X2, frame.X2),
			Y2: math.Min(box.Y2, frame.Y2),
		}
		if !box.Valid() {
			continue
		}
		out = append(out, Detection{
			Label:      name,
			Confidence: float64(r.Score),
			Box:        box,
		})
	}
	return out
}
