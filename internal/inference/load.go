package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/UnknownOlympus/magma/internal/gguf"
)

// ErrLoad is matched by every error returned from Load.
var ErrLoad = errors.New("model load failed")

// LoadError is the fatal error returned when a model cannot be loaded.
type LoadError struct {
	Path  string // model path given to Load
	Stage string // runtime, weights, tokenizer or engine
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load model %s (%s): %v", e.Path, e.Stage, e.Err)
}

// Unwrap exposes both ErrLoad and the cause to errors.Is and errors.As.
func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Err}
}

// LoadOptions tune Load. Zero values select the defaults.
type LoadOptions struct {
	Device      Device      // auto, cuda or cpu
	ContextSize int         // 0 sizes the context from MaxLength and the trained length
	MaxLength   int         // longest sequence generated, DefaultMaxLength when 0
	Seed        uint64      // sampler seed, 0 draws one at random
	Accelerator func() bool // reports an accelerator, DetectAccelerator when nil
	Logger      *slog.Logger
}

// Load reads the model at modelPath (a .gguf file or a directory holding one or more) and
// starts an engine for it through backend. It returns either a complete Session or a
// *LoadError; a tokenizer is never kept without its engine.
func Load(ctx context.Context, modelPath string, backend Backend, opts LoadOptions) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	hasAccelerator := opts.Accelerator
	if hasAccelerator == nil {
		hasAccelerator = DetectAccelerator
	}

	fail := func(stage string, err error) (*Session, error) {
		log.ErrorContext(ctx, "Model load failed", "path", modelPath, "stage", stage, "error", err)
		return nil, &LoadError{Path: modelPath, Stage: stage, Err: err}
	}

	log.InfoContext(ctx, "Loading model", "path", modelPath)

	runtime, err := ResolveRuntime(opts.Device, hasAccelerator())
	if err != nil {
		return fail("runtime", err)
	}

	weights, md, err := selectWeights(modelPath, runtime.Quantization)
	if err != nil {
		return fail("weights", err)
	}
	if !matchesQuantization(md.FileType, runtime.Quantization) {
		log.WarnContext(ctx, "No weights match the requested quantization, serving closest file",
			"quantization", runtime.Quantization,
			"file_type", md.FileType.String(),
			"weights", weights,
		)
	}

	tokenizer, err := newTokenizer(md)
	if err != nil {
		return fail("tokenizer", err)
	}

	contextSize := opts.ContextSize
	if contextSize <= 0 {
		contextSize = sizeContext(opts.MaxLength, md.ContextLength)
	}

	engine, err := backend.Open(ctx, OpenRequest{
		WeightsPath: weights,
		Runtime:     runtime,
		ContextSize: contextSize,
	})
	if err != nil {
		return fail("engine", err)
	}

	log.InfoContext(ctx, "Model loaded successfully",
		"weights", weights,
		"architecture", md.Architecture,
		"file_type", md.FileType.String(),
		"device", runtime.Device,
		"compute", runtime.Compute,
		"quantization", runtime.Quantization,
		"context_size", contextSize,
		"pad_is_eos", tokenizer.PadID == tokenizer.EOSID,
	)

	return newSession(runtime, weights, md, tokenizer, engine, contextSize, opts.Seed), nil
}

// sizeContext reserves only what one generation can fill, within the trained length.
func sizeContext(maxLength, trained int) int {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if trained > 0 && trained < maxLength {
		return trained
	}

	return maxLength
}

// matchesQuantization reports whether a file of type t is what quant asks for.
func matchesQuantization(t gguf.FileType, quant Quantization) bool {
	if quant == QuantizationInt8 {
		return t == gguf.FileTypeQ8_0
	}

	return t == gguf.FileTypeF32 || t == gguf.FileTypeF16 || t == gguf.FileTypeBF16
}

type weightsFile struct {
	path string
	md   *gguf.Metadata
}

// selectWeights picks the GGUF file that best matches the requested quantization.
func selectWeights(modelPath string, quant Quantization) (string, *gguf.Metadata, error) {
	info, err := os.Stat(modelPath)
	if err != nil {
		return "", nil, err
	}

	var paths []string
	if info.IsDir() {
		paths, err = filepath.Glob(filepath.Join(modelPath, "*.gguf"))
		if err != nil {
			return "", nil, err
		}
	} else {
		paths = []string{modelPath}
	}
	if len(paths) == 0 {
		return "", nil, fmt.Errorf("no .gguf weight files in %s", modelPath)
	}
	slices.Sort(paths)

	var files []weightsFile
	var errs []error
	for _, p := range paths {
		// Multimodal projectors ship next to the language model but are not one.
		if strings.HasPrefix(strings.ToLower(filepath.Base(p)), "mmproj") {
			continue
		}
		md, readErr := gguf.ReadFile(p)
		if readErr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(p), readErr))
			continue
		}
		files = append(files, weightsFile{path: p, md: md})
	}
	if len(files) == 0 {
		if len(errs) > 0 {
			return "", nil, errors.Join(errs...)
		}
		return "", nil, fmt.Errorf("no language model weights in %s", modelPath)
	}

	order := preference(quant)
	best := slices.MinFunc(files, func(a, b weightsFile) int {
		return rank(order, a.md.FileType) - rank(order, b.md.FileType)
	})

	return best.path, best.md, nil
}

// preference lists file types from most to least wanted.
func preference(quant Quantization) []gguf.FileType {
	if quant == QuantizationInt8 {
		return []gguf.FileType{gguf.FileTypeQ8_0, gguf.FileTypeF16, gguf.FileTypeBF16, gguf.FileTypeF32}
	}

	return []gguf.FileType{gguf.FileTypeF32, gguf.FileTypeF16, gguf.FileTypeBF16, gguf.FileTypeQ8_0}
}

func rank(order []gguf.FileType, t gguf.FileType) int {
	if i := slices.Index(order, t); i >= 0 {
		return i
	}

	return len(order)
}
