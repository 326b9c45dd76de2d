package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// EmbeddingsProvider abstracts a text->embedding generator.
// Implementations return one fixed-dimension vector per input text.
type EmbeddingsProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

const (
	// maxEmbedChars truncates inputs before embedding; overly long inputs
	// fail provider-side.
	maxEmbedChars = 8000

	embedTimeout = 60 * time.Second
)

// NewEmbeddingsProvider returns an embeddings provider for the configured
// keys, preferring Cohere when both are set. Returns nil when neither is
// configured; callers treat a nil provider as "embeddings disabled".
func NewEmbeddingsProvider(cohereKey, openAIKey, preferredModel string) EmbeddingsProvider {
	if cohereKey != "" {
		model := preferredModel
		if model == "" || !strings.HasPrefix(model, "embed-") {
			model = "embed-english-v3.0"
		}
		// Force HTTP/1.1: the Cohere endpoint intermittently breaks
		// long-lived HTTP/2 streams.
		httpClient := &http.Client{
			Timeout: embedTimeout,
			Transport: &http.Transport{
				TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
				ForceAttemptHTTP2: false,
			},
		}
		client := cohereclient.NewClient(
			cohereclient.WithToken(cohereKey),
			cohereclient.WithHTTPClient(httpClient),
		)
		return &CohereEmbeddings{client: client, model: model}
	}

	if openAIKey != "" {
		model := preferredModel
		if model == "" {
			model = "text-embedding-3-small"
		}
		return &OpenAIEmbeddings{apiKey: openAIKey, model: model}
	}
	return nil
}

// EmbedText embeds a single text, returning nil on any failure. Enrichment
// is best-effort: callers treat a nil vector as the only failure signal.
func EmbedText(ctx context.Context, provider EmbeddingsProvider, text string) []float32 {
	if provider == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	vecs, err := provider.EmbedTexts(ctx, []string{truncate(text)})
	if err != nil || len(vecs) != 1 {
		if err != nil {
			log.Printf("[ai] embed failed: %v", err)
		}
		return nil
	}
	return vecs[0]
}

// EmbedBatch embeds texts in one provider call, falling back to per-item
// calls when the batch fails so that a single poisoned input cannot sink the
// whole run. The result preserves input order; failed items are nil.
func EmbedBatch(ctx context.Context, provider EmbeddingsProvider, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	if provider == nil || len(texts) == 0 {
		return out
	}

	clean := make([]string, len(texts))
	for i, t := range texts {
		clean[i] = truncate(t)
	}

	vecs, err := provider.EmbedTexts(ctx, clean)
	if err == nil && len(vecs) == len(texts) {
		copy(out, vecs)
		return out
	}
	if err != nil {
		log.Printf("[ai] batch embed failed, retrying per item: %v", err)
	}

	for i, t := range clean {
		single, err := provider.EmbedTexts(ctx, []string{t})
		if err != nil || len(single) != 1 {
			continue
		}
		out[i] = single[0]
	}
	return out
}

func truncate(text string) string {
	runes := []rune(text)
	if len(runes) > maxEmbedChars {
		return string(runes[:maxEmbedChars])
	}
	return text
}

// CohereEmbeddings implements EmbeddingsProvider using the Cohere Embed API
// (v2). SDK: github.com/cohere-ai/cohere-go/v2
type CohereEmbeddings struct {
	client *cohereclient.Client
	model  string
}

func (c *CohereEmbeddings) ModelName() string { return c.model }

func (c *CohereEmbeddings) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	resp, err := c.client.V2.Embed(
		ctx,
		&cohere.V2EmbedRequest{
			Texts:          texts,
			Model:          c.model,
			InputType:      cohere.EmbedInputTypeSearchDocument,
			EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("cohere embed error: %w", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, errors.New("cohere embed returned no float embeddings")
	}

	floats := resp.Embeddings.Float
	if len(floats) != len(texts) {
		return nil, errors.New("embedding count mismatch")
	}

	out := make([][]float32, len(floats))
	for i, vec := range floats {
		fv := make([]float32, len(vec))
		for j, v := range vec {
			fv[j] = float32(v)
		}
		out[i] = fv
	}
	return out, nil
}

// OpenAIEmbeddings implements EmbeddingsProvider using the OpenAI
// Embeddings API.
// Endpoint: POST https://api.openai.com/v1/embeddings
// Request: {"input": ["text1", ...], "model": "text-embedding-3-small"}
// Response: {"data": [{"embedding": [...], "index": 0}, ...]}
type OpenAIEmbeddings struct {
	apiKey   string
	model    string
	endpoint string
}

func (o *OpenAIEmbeddings) ModelName() string { return o.model }

func (o *OpenAIEmbeddings) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	endpoint := o.endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/embeddings"
	}

	payload := map[string]interface{}{
		"input": texts,
		"model": o.model,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("openai embeddings error: status %d: %v", resp.StatusCode, body)
	}

	var parsed struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) != len(texts) {
		return nil, errors.New("embedding count mismatch")
	}

	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}
