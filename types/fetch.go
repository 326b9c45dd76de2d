package types

import "time"

// FetchStatus classifies the outcome of a source fetch.
type FetchStatus string

const (
	// FetchSuccess means the body is long enough for full enrichment.
	FetchSuccess FetchStatus = "SUCCESS"
	// FetchSoftSuccess means title/metadata were obtained but the body is
	// short, missing, or behind an access restriction.
	FetchSoftSuccess FetchStatus = "SOFT_SUCCESS"
	// FetchFailed means no parseable identity, no title, or an
	// unrecoverable access error.
	FetchFailed FetchStatus = "FAILED"
)

// Failure reason codes recorded on articles. Free-text detail may follow the
// code, e.g. "DUPLICATE_OF:42".
const (
	ReasonInvalidURLFormat  = "INVALID_SOURCE_URL_FORMAT"
	ReasonFetchTimeout      = "FETCH_TIMEOUT"
	ReasonFetchRequestError = "FETCH_REQUEST_ERROR"
	ReasonAccessDenied      = "ACCESS_DENIED_OR_NOT_FOUND"
	ReasonAccessRestricted  = "ACCESS_RESTRICTED"
	ReasonNoTitle           = "PARSE_NO_TITLE"
	ReasonContentTooShort   = "SOFT_CONTENT_TOO_SHORT"
	ReasonSoftUnknown       = "SOFT_UNKNOWN"
	ReasonMaxRetries        = "MAX_RETRIES_EXCEEDED"
	ReasonStaleProcessing   = "STALE_PROCESSING_TIMEOUT"
	ReasonDuplicateNoIdent  = "INTEGRITY_ERROR_WITHOUT_IDENTITY"
	ReasonDuplicateNotFound = "INTEGRITY_ERROR_DUPLICATE_NOT_FOUND"
	ReasonDuplicateOf       = "DUPLICATE_OF"
)

// FetchResult is the structured outcome of fetching one article URL.
type FetchResult struct {
	Status        FetchStatus `json:"status"`
	Title         string      `json:"title"`
	Content       string      `json:"content"`
	Publisher     string      `json:"publisher"`
	ImageURL      string      `json:"image_url,omitempty"`
	PublishedAt   *time.Time  `json:"published_at,omitempty"`
	SourceOID     string      `json:"source_oid,omitempty"`
	SourceAID     string      `json:"source_aid,omitempty"`
	NormalizedURL string      `json:"normalized_url,omitempty"`
	FailedReason  string      `json:"failed_reason,omitempty"`
	HTTPStatus    int         `json:"http_status,omitempty"`
	CrawledAt     time.Time   `json:"crawled_at"`
}

// SearchItem is one candidate article returned by the search index.
type SearchItem struct {
	Title        string    `json:"title"`
	Link         string    `json:"link"`
	OriginalLink string    `json:"original_link,omitempty"`
	Description  string    `json:"description"`
	PubDate      time.Time `json:"pub_date"`
}
