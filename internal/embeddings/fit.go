package embeddings

import "context"

// Fit adapts p to emit vectors of exactly dim elements, zero-padding short
// vectors and truncating long ones. It returns p unchanged when p already
// reports dim.
func Fit(p Provider, dim int) Provider {
	if p == nil || dim <= 0 || p.Dim() == dim {
		return p
	}
	return &fitted{inner: p, dim: dim}
}

type fitted struct {
	inner Provider
	dim   int
}

func (f *fitted) ModelID() string { return f.inner.ModelID() }
func (f *fitted) Dim() int        { return f.dim }

func (f *fitted) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, ErrEmptyResult
	}
	if len(v) == f.dim {
		return v, nil
	}
	out := make([]float32, f.dim)
	copy(out, v)
	return out, nil
}
