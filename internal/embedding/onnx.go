//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/tsukimori/sakuin/pkg/utils"
)

// ONNXEmbedder runs a sentence-transformer ONNX model through onnxruntime.
// One session with pre-allocated single-document tensors is shared by all
// callers; the mutex serializes inference while the cache absorbs repeats.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	cache      *EmbeddingCache
	tokenizer  Tokenizer

	mu     sync.Mutex
	inputs [3]*ort.Tensor[int64] // input_ids, attention_mask, token_type_ids
	output *ort.Tensor[float32]
}

// NewONNXEmbedder loads the model at modelPath and prepares a reusable
// inference session. Failing here (missing runtime library, missing model
// file) is how the process discovers the nn backend cannot be served.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens, cacheSize int) (*ONNXEmbedder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize ONNX runtime: %w", err)
	}

	e := &ONNXEmbedder{
		dimensions: dimensions,
		maxTokens:  maxTokens,
		cache:      NewEmbeddingCache(cacheSize),
		tokenizer:  &SimpleTokenizer{},
	}

	seqShape := ort.NewShape(1, int64(maxTokens))
	ids, mask, types := e.tokenizer.Tokenize("", maxTokens)
	for i, data := range [][]int64{ids, mask, types} {
		tensor, err := ort.NewTensor(seqShape, data)
		if err != nil {
			e.destroyTensors()
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		e.inputs[i] = tensor
	}
	output, err := ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions))
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	e.output = output

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{e.inputs[0], e.inputs[1], e.inputs[2]},
		[]ort.ArbitraryTensor{e.output},
		nil,
	)
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}
	e.session = session
	return e, nil
}

// Embed returns the unit-normalized embedding of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputs[0].GetData(), ids)
	copy(e.inputs[1].GetData(), mask)
	copy(e.inputs[2].GetData(), types)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("embedding inference: %w", err)
	}

	vector := make([]float32, e.dimensions)
	copy(vector, e.output.GetData()[:e.dimensions])
	utils.NormalizeL2(vector)

	e.cache.Set(text, vector)
	return vector, nil
}

// EmbedBatch embeds each text in order through the shared session.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Dimensions returns the embedding width.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and its tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	e.destroyTensors()
	return err
}

func (e *ONNXEmbedder) destroyTensors() {
	for i, t := range e.inputs {
		if t != nil {
			_ = t.Destroy()
			e.inputs[i] = nil
		}
	}
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
}
