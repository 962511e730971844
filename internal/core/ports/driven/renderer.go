package driven

import (
	"context"
	"io"
)

// RenderResult is the outcome of a conversion.
type RenderResult struct {
	// PDF is the rendered document stream. The caller closes it.
	PDF io.ReadCloser
}

// Renderer converts office and image formats to PDF via the external
// rendering service. PDF inputs never reach the renderer.
type Renderer interface {
	// Render converts the named input stream to PDF. The filename's
	// extension tells the renderer which route to use.
	Render(ctx context.Context, filename string, r io.Reader) (*RenderResult, error)

	// Healthy reports whether the rendering service is reachable.
	Healthy(ctx context.Context) error
}
