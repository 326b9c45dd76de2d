package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"newskeep/types"
)

func testPortal(srv *httptest.Server) Portal {
	u, _ := url.Parse(srv.URL)
	return Portal{HostSuffix: u.Hostname(), CanonicalHost: u.Host, Scheme: "http"}
}

func articlePage(title, body string) string {
	var paragraphs strings.Builder
	for _, p := range strings.Split(body, "\n") {
		fmt.Fprintf(&paragraphs, "<p>%s</p>\n", p)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head>
<meta property="og:title" content="%s">
<meta property="og:image" content="https://img.example.com/main.jpg">
<meta property="og:article:author" content="연합뉴스">
<meta property="article:published_time" content="2026-08-20T09:30:00+09:00">
<title>%s</title>
</head><body>
<div class="media_end_head_top_logo"><img title="연합뉴스"></div>
<article id="dic_area">
%s
</article>
</body></html>`, title, title, paragraphs.String())
}

func longBody() string {
	sentence := "정부는 이날 오전 관계 부처 합동 브리핑에서 새로운 산업 지원 방안을 발표하고 세부 추진 일정을 공개했다."
	return strings.Repeat(sentence+" ", 12) + "\n" +
		strings.Repeat("업계 관계자는 이번 조치가 시장에 미칠 영향을 두고 엇갈린 전망을 내놓았다. ", 10)
}

func TestFetchCompleteArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mnews/article/001/0012345678" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, articlePage("반도체 수출 반등", longBody()))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testPortal(srv))
	result := f.Fetch(context.Background(), srv.URL+"/mnews/article/001/0012345678")

	if result.Status != types.FetchSuccess {
		t.Fatalf("status = %s (%s), want SUCCESS", result.Status, result.FailedReason)
	}
	if result.Title != "반도체 수출 반등" {
		t.Errorf("title = %q", result.Title)
	}
	if result.SourceOID != "001" || result.SourceAID != "0012345678" {
		t.Errorf("identity = %s/%s", result.SourceOID, result.SourceAID)
	}
	if result.Publisher != "연합뉴스" {
		t.Errorf("publisher = %q", result.Publisher)
	}
	if result.ImageURL != "https://img.example.com/main.jpg" {
		t.Errorf("image = %q", result.ImageURL)
	}
	if result.PublishedAt == nil {
		t.Error("published_at not extracted")
	}
	if len([]rune(result.Content)) < 200 {
		t.Errorf("content too short: %d runes", len([]rune(result.Content)))
	}
}

func TestFetchShortBodyIsSoftSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage("짧은 속보", "한 줄짜리 속보입니다."))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testPortal(srv))
	result := f.Fetch(context.Background(), srv.URL+"/mnews/article/001/0012345678")

	if result.Status != types.FetchSoftSuccess {
		t.Fatalf("status = %s, want SOFT_SUCCESS", result.Status)
	}
	if result.FailedReason != types.ReasonContentTooShort {
		t.Errorf("reason = %q, want %q", result.FailedReason, types.ReasonContentTooShort)
	}
	if result.Title == "" {
		t.Error("title must survive a soft success")
	}
}

func TestFetchMissingTitleFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><head></head><body><p>본문만 있는 페이지</p></body></html>`)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testPortal(srv))
	result := f.Fetch(context.Background(), srv.URL+"/mnews/article/001/0012345678")

	if result.Status != types.FetchFailed {
		t.Fatalf("status = %s, want FAILED", result.Status)
	}
	if result.FailedReason != types.ReasonNoTitle {
		t.Errorf("reason = %q, want %q", result.FailedReason, types.ReasonNoTitle)
	}
}

func TestFetchHTTPStatuses(t *testing.T) {
	status := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(testPortal(srv))
	target := srv.URL + "/mnews/article/001/0012345678"

	result := f.Fetch(context.Background(), target)
	if result.Status != types.FetchFailed || result.HTTPStatus != 404 {
		t.Fatalf("404: status=%s http=%d", result.Status, result.HTTPStatus)
	}
	if !strings.HasPrefix(result.FailedReason, types.ReasonAccessDenied) {
		t.Errorf("404 reason = %q", result.FailedReason)
	}

	status = http.StatusInternalServerError
	result = f.Fetch(context.Background(), target)
	if result.HTTPStatus != 500 {
		t.Fatalf("500: http=%d", result.HTTPStatus)
	}
	if !strings.HasPrefix(result.FailedReason, types.ReasonFetchRequestError) {
		t.Errorf("500 reason = %q, want a transient request error", result.FailedReason)
	}
}

func TestFetchInvalidURL(t *testing.T) {
	f := NewHTTPFetcher(DefaultPortal())
	result := f.Fetch(context.Background(), "https://example.com/not-a-news-link")

	if result.Status != types.FetchFailed {
		t.Fatalf("status = %s, want FAILED", result.Status)
	}
	if result.FailedReason != types.ReasonInvalidURLFormat {
		t.Errorf("reason = %q, want %q", result.FailedReason, types.ReasonInvalidURLFormat)
	}
	if result.HTTPStatus != 0 {
		t.Errorf("no HTTP call expected, got status %d", result.HTTPStatus)
	}
}

func TestClassifyFetchErrorTimeout(t *testing.T) {
	if got := classifyFetchError(context.DeadlineExceeded); got != types.ReasonFetchTimeout {
		t.Errorf("classifyFetchError = %q, want %q", got, types.ReasonFetchTimeout)
	}
}
