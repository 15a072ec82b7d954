package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kamusis/coach-cli/internal/config"
)

var (
	// ErrUnavailable means the embedding capability is not ready: not
	// configured, not reachable, or temporarily failing on the server side.
	// Callers may retry later.
	ErrUnavailable = errors.New("embedding capability unavailable")

	// ErrEmptyResult means the capability answered but produced no vector.
	ErrEmptyResult = errors.New("embedding result is empty")
)

// Provider embeds text into a fixed-length float vector.
//
// Implementations must be deterministic for the same input text and model.
type Provider interface {
	ModelID() string
	Dim() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config contains the resolved embeddings configuration.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Dim      int
}

// LoadConfig resolves embeddings config from environment variables first, then ~/.coach/.env.
func LoadConfig() (*Config, error) {
	var cfg Config
	for _, kv := range []struct {
		key string
		dst *string
	}{
		{"COACH_EMBEDDINGS_PROVIDER", &cfg.Provider},
		{"COACH_EMBEDDINGS_MODEL", &cfg.Model},
		{"COACH_EMBEDDINGS_API_KEY", &cfg.APIKey},
		{"COACH_EMBEDDINGS_BASE_URL", &cfg.BaseURL},
	} {
		v, err := config.GetConfigValue(kv.key)
		if err != nil {
			return nil, err
		}
		*kv.dst = v
	}
	dim, err := config.GetConfigValue("COACH_EMBEDDINGS_DIM")
	if err != nil {
		return nil, err
	}
	if dim != "" {
		n, err := strconv.Atoi(dim)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid COACH_EMBEDDINGS_DIM %q", dim)
		}
		cfg.Dim = n
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &cfg, nil
}

// NewFromConfig returns an embeddings provider. An unset provider yields an
// error wrapping ErrUnavailable.
func NewFromConfig(cfg *Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embeddings config is nil")
	}
	switch cfg.Provider {
	case "":
		return nil, fmt.Errorf("%w: provider is not configured (set COACH_EMBEDDINGS_PROVIDER)", ErrUnavailable)
	case "openai":
		return NewOpenAI(cfg), nil
	case "hashing":
		dim := cfg.Dim
		if dim <= 0 {
			dim = DefaultHashingDim
		}
		return NewHashing(dim), nil
	default:
		return nil, fmt.Errorf("unsupported embeddings provider: %s", cfg.Provider)
	}
}

// Unavailable returns a Provider whose every Embed call fails with
// ErrUnavailable. It stands in when no capability is configured so the
// importer can take its deferred path.
func Unavailable(reason string) Provider {
	return unavailable{reason: reason}
}

type unavailable struct{ reason string }

func (u unavailable) ModelID() string { return "" }
func (u unavailable) Dim() int        { return 0 }

func (u unavailable) Embed(context.Context, string) ([]float32, error) {
	if u.reason == "" {
		return nil, ErrUnavailable
	}
	return nil, fmt.Errorf("%w: %s", ErrUnavailable, u.reason)
}
