// Package capabilitytest provides deterministic in-memory implementations
// of the capability interfaces for tests.
package capabilitytest

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// GeneratorCall records one Generate invocation.
type GeneratorCall struct {
	System string
	Prompt string
}

// FakeGenerator is a scripted Generator for tests.
type FakeGenerator struct {
	mu sync.Mutex

	// Response is returned by Generate when Err is nil.
	Response string

	// Err, when set, is returned by every Generate call.
	Err error

	calls []GeneratorCall
}

// Generate records the call and returns the scripted response or error.
func (g *FakeGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, GeneratorCall{System: system, Prompt: prompt})
	g.mu.Unlock()

	if g.Err != nil {
		return "", g.Err
	}
	return g.Response, nil
}

// Calls returns a copy of all recorded invocations.
func (g *FakeGenerator) Calls() []GeneratorCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GeneratorCall, len(g.calls))
	copy(out, g.calls)
	return out
}

// FakeEmbedder produces deterministic unit vectors derived from a text hash,
// so identical texts always embed identically across runs.
type FakeEmbedder struct {
	dims int

	// Err, when set, is returned by every Embed/EmbedBatch call.
	Err error
}

// NewFakeEmbedder creates a FakeEmbedder with the given dimensionality.
// Dimensions <= 0 default to 64.
func NewFakeEmbedder(dims int) *FakeEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &FakeEmbedder{dims: dims}
}

// Embed returns a deterministic unit vector for the text.
func (e *FakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return e.vector(text), nil
}

// EmbedBatch embeds each text independently.
func (e *FakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

// vector derives a pseudo-random unit vector from the FNV hash of text.
func (e *FakeEmbedder) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dims)
	for i := range vec {
		// Linear congruential step per component.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
