package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAPIClientSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "반도체" {
			t.Errorf("query = %q", got)
		}
		if got := r.URL.Query().Get("display"); got != "100" {
			t.Errorf("display = %q", got)
		}
		if r.Header.Get("X-Search-Client-Id") != "id" || r.Header.Get("X-Search-Client-Secret") != "secret" {
			t.Error("missing client credentials")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]string{
				{
					"title":        "<b>반도체</b> 수출 반등",
					"originallink": "https://press.example.com/a/1",
					"link":         "https://n.news.naver.com/mnews/article/001/0012345678",
					"description":  "수출이 <b>반등</b>했다",
					"pubDate":      "Mon, 17 Aug 2026 09:30:00 +0900",
				},
			},
		})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "id", "secret")
	items, err := c.Search(context.Background(), "반도체", 100)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}

	item := items[0]
	if item.Title != "반도체 수출 반등" {
		t.Errorf("emphasis markers not stripped: %q", item.Title)
	}
	if item.Description != "수출이 반등했다" {
		t.Errorf("description = %q", item.Description)
	}
	if item.Link != "https://n.news.naver.com/mnews/article/001/0012345678" {
		t.Errorf("link = %q", item.Link)
	}
	want := time.Date(2026, 8, 17, 9, 30, 0, 0, time.FixedZone("", 9*3600))
	if !item.PubDate.Equal(want) {
		t.Errorf("pubDate = %v, want %v", item.PubDate, want)
	}
}

func TestAPIClientNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "id", "secret")
	if _, err := c.Search(context.Background(), "키워드", 10); err == nil {
		t.Fatal("expected error on HTTP 401")
	}
}

func TestParsePubDateFormats(t *testing.T) {
	cases := []string{
		"Mon, 17 Aug 2026 09:30:00 +0900",
		"Mon, 17 Aug 2026 09:30:00 KST",
		"2026-08-17T09:30:00+09:00",
	}
	for _, raw := range cases {
		if parsePubDate(raw).IsZero() {
			t.Errorf("parsePubDate(%q) = zero time", raw)
		}
	}
	if !parsePubDate("garbage").IsZero() {
		t.Error("unparseable date must yield the zero time")
	}
}
