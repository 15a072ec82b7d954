package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type openAIProvider struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	dim     int
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// apiError reads both {"error":"msg"} and {"error":{"message":"msg"}}.
type apiError struct {
	Error json.RawMessage `json:"error"`
}

func (e apiError) message() string {
	var s string
	if json.Unmarshal(e.Error, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Error, &obj) == nil {
		return obj.Message
	}
	return ""
}

// NewOpenAI returns a provider for an OpenAI-compatible endpoint
// (POST {baseURL}/embeddings).
//
// Missing credentials, transport errors, rejected credentials, 429 and 5xx
// responses are reported as ErrUnavailable; the caller may retry later.
func NewOpenAI(cfg *Config) Provider {
	return &openAIProvider{
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		dim:     cfg.Dim,
	}
}

func (p *openAIProvider) ModelID() string { return "openai:" + p.model }

func (p *openAIProvider) Dim() int { return p.dim }

func (p *openAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	switch {
	case p.model == "":
		return nil, fmt.Errorf("%w: model is not configured (set COACH_EMBEDDINGS_MODEL)", ErrUnavailable)
	case p.apiKey == "":
		return nil, fmt.Errorf("%w: API key is not configured (set COACH_EMBEDDINGS_API_KEY)", ErrUnavailable)
	case strings.TrimSpace(text) == "":
		return nil, fmt.Errorf("%w: cannot embed empty text", ErrEmptyResult)
	}

	b, err := json.Marshal(embeddingRequest{Model: p.model, Input: text, Dimensions: p.dim})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, body)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("cannot parse embeddings response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, ErrEmptyResult
	}
	out := make([]float32, len(parsed.Data[0].Embedding))
	for i, v := range parsed.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

func statusError(code int, body []byte) error {
	var ae apiError
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &ae) == nil {
		if m := ae.message(); m != "" {
			msg = m
		}
	}
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden,
		code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, code, msg)
	}
	return fmt.Errorf("embeddings request failed: HTTP %d: %s", code, msg)
}
