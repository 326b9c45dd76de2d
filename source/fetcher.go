package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"newskeep/config"
	"newskeep/types"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	fetchTimeout  = 15 * time.Second
	maxBodyBytes  = 4 << 20
	fetcherAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptLangHdr = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

// restrictionPhrases mark pages that require login, age or permission
// checks. A hit only counts as a restriction when no article body was
// extracted, to keep false positives down.
var restrictionPhrases = []string{
	"로그인이 필요",
	"연령 확인",
	"본인확인",
	"권한이 없습니다",
	"접근이 제한",
}

// Fetcher turns a candidate URL into a structured fetch result. It never
// returns an error: every failure mode is encoded in the result status and
// reason so the pipeline can decide on retries.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) types.FetchResult
}

// HTTPFetcher fetches portal article pages over a pooled HTTP client and
// extracts title, body, publisher, image and publish time.
type HTTPFetcher struct {
	client *http.Client
	portal Portal
	minLen int
}

// NewHTTPFetcher builds a fetcher with a process-lifetime pooled client.
func NewHTTPFetcher(portal Portal) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: fetchTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		portal: portal,
		minLen: config.MinContentLength,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) types.FetchResult {
	result := types.FetchResult{
		Status:    types.FetchFailed,
		CrawledAt: time.Now(),
	}

	ident := f.portal.ParseIdentity(rawURL)
	if ident == nil {
		result.FailedReason = types.ReasonInvalidURLFormat
		return result
	}
	result.SourceOID = ident.OID
	result.SourceAID = ident.AID
	result.NormalizedURL = ident.NormalizedURL

	body, status, err := f.get(ctx, ident.NormalizedURL)
	result.HTTPStatus = status
	if err != nil {
		result.FailedReason = classifyFetchError(err)
		return result
	}
	if status == http.StatusForbidden || status == http.StatusNotFound {
		result.FailedReason = fmt.Sprintf("%s(%d)", types.ReasonAccessDenied, status)
		return result
	}
	if status < 200 || status >= 300 {
		result.FailedReason = fmt.Sprintf("%s(HTTP_%d)", types.ReasonFetchRequestError, status)
		return result
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		result.FailedReason = fmt.Sprintf("%s(%v)", types.ReasonFetchRequestError, err)
		return result
	}

	content := extractContent(body, ident.NormalizedURL)
	if len([]rune(content)) < f.minLen {
		// Readability came up short; fall back to the portal's article
		// body container.
		if alt := strings.TrimSpace(doc.Find("#dic_area").Text()); len([]rune(alt)) > len([]rune(content)) {
			content = alt
		}
	}

	if content == "" && isRestricted(doc) {
		result.FailedReason = types.ReasonAccessRestricted
	}

	title := extractTitle(doc)
	if title == "" {
		// Without even a title the row has no archival value.
		if result.FailedReason == "" {
			result.FailedReason = types.ReasonNoTitle
		}
		return result
	}

	result.Title = title
	result.Content = content
	result.Publisher = extractPublisher(doc)
	result.ImageURL = extractImageURL(doc)
	result.PublishedAt = extractPublishedAt(doc)

	if len([]rune(content)) >= f.minLen && result.FailedReason == "" {
		result.Status = types.FetchSuccess
		return result
	}

	// Title and metadata are worth keeping even when the body is short or
	// the page was partially restricted.
	result.Status = types.FetchSoftSuccess
	if result.FailedReason == "" {
		if len([]rune(content)) < f.minLen {
			result.FailedReason = types.ReasonContentTooShort
		} else {
			result.FailedReason = types.ReasonSoftUnknown
		}
	}
	return result
}

func (f *HTTPFetcher) get(ctx context.Context, fetchURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", fetcherAgent)
	req.Header.Set("Accept-Language", acceptLangHdr)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func classifyFetchError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.ReasonFetchTimeout
	}
	return fmt.Sprintf("%s(%v)", types.ReasonFetchRequestError, err)
}

// extractContent runs readability over the fetched page and returns the
// cleaned plain-text body.
func extractContent(body []byte, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(article.TextContent)
	// Collapse runs of blank lines left over from markup boundaries.
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

func extractTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", "")); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("#title_area span").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h2.media_end_head_headline").First().Text())
}

func extractPublisher(doc *goquery.Document) string {
	if p := strings.TrimSpace(doc.Find(`meta[property="og:article:author"]`).AttrOr("content", "")); p != "" {
		return p
	}
	if p := strings.TrimSpace(doc.Find(".media_end_head_top_logo img").AttrOr("title", "")); p != "" {
		return p
	}
	return "Unknown"
}

func extractImageURL(doc *goquery.Document) string {
	if src := strings.TrimSpace(doc.Find(`meta[property="og:image"]`).AttrOr("content", "")); src != "" {
		return src
	}
	return strings.TrimSpace(doc.Find("article img").First().AttrOr("src", ""))
}

// extractPublishedAt tries, in order: the published_time meta property, the
// datestamp element's machine-readable attribute, then nothing. A missing
// publish time is allowed.
func extractPublishedAt(doc *goquery.Document) *time.Time {
	for _, prop := range []string{"article:published_time", "og:article:published_time"} {
		raw := strings.TrimSpace(doc.Find(`meta[property="` + prop + `"]`).AttrOr("content", ""))
		if t := parseTimestamp(raw); t != nil {
			return t
		}
	}
	raw := strings.TrimSpace(doc.Find(".media_end_head_info_datestamp_time").AttrOr("data-date-time", ""))
	return parseTimestamp(raw)
}

func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return &t
		}
	}
	return nil
}

func isRestricted(doc *goquery.Document) bool {
	text := doc.Text()
	for _, phrase := range restrictionPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
