package source

import (
	"net/url"
	"regexp"
	"strings"
)

// Identity is the stable per-publisher article identifier pair extracted
// from a portal URL, independent of query-string variation.
type Identity struct {
	OID           string
	AID           string
	NormalizedURL string
}

// Portal describes the news portal whose URLs carry an oid/aid identity.
// HostSuffix gates which links are recognized at all; CanonicalHost is used
// to rebuild the normalized article URL. Scheme defaults to https.
type Portal struct {
	HostSuffix    string
	CanonicalHost string
	Scheme        string
}

// DefaultPortal matches the portal layout the service was built against:
// article pages live under /mnews/article/{oid}/{aid} (or the legacy
// read?oid=…&aid=… form) on any subdomain of the portal host.
func DefaultPortal() Portal {
	return Portal{
		HostSuffix:    "news.naver.com",
		CanonicalHost: "n.news.naver.com",
	}
}

var (
	pathIdentityRe  = regexp.MustCompile(`/(?:mnews/)?article/(\d{3,})/(\d{5,})`)
	looseIdentityRe = regexp.MustCompile(`oid=(\d+).*aid=(\d+)`)
)

// ParseIdentity extracts the oid/aid pair from raw and rebuilds the
// canonical URL. It returns nil when the URL does not resolve to a
// recognized source identity.
func (p Portal) ParseIdentity(raw string) *Identity {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}

	host := strings.ToLower(parsed.Hostname())
	if host != p.HostSuffix && !strings.HasSuffix(host, "."+p.HostSuffix) {
		return nil
	}

	// Query form: read?oid=…&aid=…
	q := parsed.Query()
	if oid, aid := q.Get("oid"), q.Get("aid"); isDigits(oid) && isDigits(aid) {
		return p.identity(oid, aid)
	}

	// Path form: /mnews/article/{oid}/{aid} or /article/{oid}/{aid}
	if m := pathIdentityRe.FindStringSubmatch(parsed.Path); m != nil {
		return p.identity(m[1], m[2])
	}

	// Loose fallback for historical query variants.
	if m := looseIdentityRe.FindStringSubmatch(parsed.RawQuery); m != nil {
		return p.identity(m[1], m[2])
	}

	return nil
}

func (p Portal) identity(oid, aid string) *Identity {
	scheme := p.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return &Identity{
		OID:           oid,
		AID:           aid,
		NormalizedURL: scheme + "://" + p.CanonicalHost + "/mnews/article/" + oid + "/" + aid,
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
