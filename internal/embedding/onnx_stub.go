//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errONNXUnavailable = errors.New("onnx provider requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXProvider stub when built without CGO (see onnx.go for the real one).
// The constructor always fails; the methods exist only to satisfy Provider.
type ONNXProvider struct{}

// NewONNXProvider returns an error when built without CGO.
func NewONNXProvider(_ string, _, _, _ int) (*ONNXProvider, error) {
	return nil, errONNXUnavailable
}

func (p *ONNXProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, errONNXUnavailable
}

func (p *ONNXProvider) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errONNXUnavailable
}

func (p *ONNXProvider) Dimensions() int { return 0 }

func (p *ONNXProvider) Name() string { return "onnx" }

func (p *ONNXProvider) Close() error { return nil }
