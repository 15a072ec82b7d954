package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultHashingDim is the vector length of the offline provider when none is configured.
const DefaultHashingDim = 384

type hashingProvider struct {
	dim  int
	fold cases.Caser
}

// NewHashing returns an offline provider that embeds text with the signed
// feature-hashing trick over unigrams and bigrams. Text is NFKC-normalized
// and case-folded first, so visually equal inputs embed identically. The
// output is L2-normalized.
func NewHashing(dim int) Provider {
	if dim <= 0 {
		dim = DefaultHashingDim
	}
	return &hashingProvider{dim: dim, fold: cases.Fold()}
}

func (p *hashingProvider) ModelID() string { return fmt.Sprintf("hashing:%d", p.dim) }

func (p *hashingProvider) Dim() int { return p.dim }

func (p *hashingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := p.tokenize(text)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no tokens in input", ErrEmptyResult)
	}

	v := make([]float64, p.dim)
	add := func(feature string, weight float64) {
		h := xxhash.Sum64String(feature)
		i := int(h % uint64(p.dim))
		if h>>63 == 1 {
			weight = -weight
		}
		v[i] += weight
	}
	for i, tok := range tokens {
		add(tok, 1)
		if i > 0 {
			add(tokens[i-1]+" "+tok, 0.5)
		}
	}

	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return nil, ErrEmptyResult
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, p.dim)
	for i, x := range v {
		out[i] = float32(x * inv)
	}
	return out, nil
}

func (p *hashingProvider) tokenize(text string) []string {
	s := p.fold.String(norm.NFKC.String(text))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
