package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Summary is the LLM-produced digest of one article.
type Summary struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// Enricher produces summaries, tags and search keywords via an LLM. Every
// method degrades gracefully: callers must treat an error as "no value" and
// never fail an article or a recommendation run over it.
type Enricher interface {
	Summarize(ctx context.Context, title, content string) (*Summary, error)
	KeywordsFromContext(ctx context.Context, shortTerm, longTerm string) ([]string, error)
	ExplorationKeywords(ctx context.Context, strong, weak []string) ([]string, error)
}

const (
	chatTimeout = 60 * time.Second

	// maxSummaryChars bounds per-call token spend; the opening of a news
	// article is enough for a faithful summary.
	maxSummaryChars = 3000

	// minSummarizableChars skips the LLM for stub bodies.
	minSummarizableChars = 50
)

// DefaultPersonalKeywords pad the keyword set when the LLM returns fewer
// than three, and replace it entirely when the call fails.
var DefaultPersonalKeywords = []string{"IT", "테크", "AI"}

// DefaultExploreKeywords seed exploration for users with no usable history.
var DefaultExploreKeywords = []string{"과학", "문화"}

// OpenAIEnricher talks to the chat completions API in JSON mode.
// Endpoint: POST https://api.openai.com/v1/chat/completions
type OpenAIEnricher struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

var _ Enricher = (*OpenAIEnricher)(nil)

// NewOpenAIEnricher builds an enricher; returns nil when no key is
// configured so callers can treat enrichment as disabled.
func NewOpenAIEnricher(apiKey, model string) *OpenAIEnricher {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIEnricher{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: chatTimeout},
	}
}

// Summarize returns a short summary plus 3-5 categorization tags, or nil
// when the body is too short to be worth a call.
func (e *OpenAIEnricher) Summarize(ctx context.Context, title, content string) (*Summary, error) {
	if len([]rune(content)) < minSummarizableChars {
		return nil, nil
	}

	system := "You are a helpful news editor. " +
		"Read the provided article and perform the following tasks:\n" +
		"1. Summarize the key points in the article's language in 3 bullet points.\n" +
		"2. Extract 3-5 relevant keywords (tags) for categorization.\n" +
		"3. Output must be valid JSON with keys: 'summary' (string) and 'tags' (list of strings)."

	body := content
	if runes := []rune(body); len(runes) > maxSummaryChars {
		body = string(runes[:maxSummaryChars])
	}
	user := fmt.Sprintf("Title: %s\n\nContent:\n%s", title, body)

	var out Summary
	if err := e.jsonChat(ctx, system, user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// KeywordsFromContext derives exactly three search keywords from the user's
// short-term and long-term reading context: one anchored to the short-term
// trend, one to long-term core taste, one blended or adjacent.
func (e *OpenAIEnricher) KeywordsFromContext(ctx context.Context, shortTerm, longTerm string) ([]string, error) {
	system := "You are an assistant for a news recommendation system. " +
		"From the user's reading context, suggest exactly 3 search keywords in the user's language: " +
		"the first anchored to the short-term trend, the second to the long-term core taste, " +
		"the third blending or adjacent to both. " +
		"Output must be a JSON object with a single key 'keywords' which is a list of strings."

	user := fmt.Sprintf("Short-term context (last 24h):\n%s\n\nLong-term context (last 30 days):\n%s", shortTerm, longTerm)

	var out struct {
		Keywords []string `json:"keywords"`
	}
	if err := e.jsonChat(ctx, system, user, &out); err != nil {
		return nil, err
	}
	return cleanKeywords(out.Keywords, 3), nil
}

// ExplorationKeywords asks for bridge keywords connecting strong taste
// categories to weak ones, plus one wildcard purely inside the weak set.
func (e *OpenAIEnricher) ExplorationKeywords(ctx context.Context, strong, weak []string) ([]string, error) {
	system := "You are an assistant that helps a reader broaden their horizons. " +
		"Given categories the user reads heavily (strong) and ones they barely read (weak), " +
		"suggest 2 'bridge' search keywords connecting a strong category to a weak one, " +
		"and 1 'wildcard' keyword purely within a weak category, " +
		"biased toward recent and in-depth content. " +
		"Output must be a JSON object with a single key 'keywords' which is a list of strings."

	user := fmt.Sprintf("Strong categories: %s\nWeak categories: %s",
		strings.Join(strong, ", "), strings.Join(weak, ", "))

	var out struct {
		Keywords []string `json:"keywords"`
	}
	if err := e.jsonChat(ctx, system, user, &out); err != nil {
		return nil, err
	}
	return cleanKeywords(out.Keywords, 3), nil
}

// DescribeInterests turns a reader's recent article titles into a one or two
// sentence interest summary in the titles' language.
func (e *OpenAIEnricher) DescribeInterests(ctx context.Context, titles []string) (string, error) {
	system := "You are an assistant for a news reading service. " +
		"Given the titles of articles a reader saved recently, describe their current interests " +
		"in one or two sentences, in the same language as the titles. " +
		"Output must be a JSON object with a single key 'description' (string)."

	user := "Recent titles:\n" + strings.Join(titles, "\n")

	var out struct {
		Description string `json:"description"`
	}
	if err := e.jsonChat(ctx, system, user, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Description), nil
}

// jsonChat runs one JSON-mode chat completion and unmarshals the reply.
func (e *OpenAIEnricher) jsonChat(ctx context.Context, system, user string, out interface{}) error {
	endpoint := e.endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}

	payload := map[string]interface{}{
		"model": e.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": map[string]string{"type": "json_object"},
		"temperature":     0.5,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("chat completion error: status %d: %v", resp.StatusCode, body)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	if len(parsed.Choices) == 0 {
		return fmt.Errorf("chat completion returned no choices")
	}

	return json.Unmarshal([]byte(parsed.Choices[0].Message.Content), out)
}

func cleanKeywords(keywords []string, max int) []string {
	out := make([]string, 0, max)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		out = append(out, kw)
		if len(out) == max {
			break
		}
	}
	return out
}
