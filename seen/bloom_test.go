package seen

import "testing"

func TestNormalizeURLStripsTrackingParams(t *testing.T) {
	got := normalizeURL("HTTPS://N.News.Naver.com/mnews/article/001/0012345678?utm_source=x&fbclid=abc#comment")
	want := "https://n.news.naver.com/mnews/article/001/0012345678"
	if got != want {
		t.Errorf("normalizeURL = %q, want %q", got, want)
	}
}

func TestHashURLStableAcrossEquivalentForms(t *testing.T) {
	a := hashURL("https://n.news.naver.com/mnews/article/001/0012345678/")
	b := hashURL("https://N.NEWS.NAVER.COM/mnews/article/001/0012345678?utm_medium=feed")
	if a != b {
		t.Errorf("equivalent URLs hash differently: %s vs %s", a, b)
	}
	if c := hashURL("https://n.news.naver.com/mnews/article/001/0099999999"); c == a {
		t.Error("distinct URLs must not collide in the normalizer")
	}
}
