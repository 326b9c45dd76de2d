package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"newskeep/recommend"
	"newskeep/store"
	"newskeep/types"

	"github.com/gin-gonic/gin"
)

// userIDHeader carries the caller identity; authentication itself happens at
// the gateway in front of this service.
const userIDHeader = "X-User-ID"

// ArticleStore is the persistence surface the HTTP layer needs.
type ArticleStore interface {
	CreatePending(ctx context.Context, userID int64, url string) (*types.Article, bool, error)
	List(ctx context.Context, userID int64, opts store.ListOptions) ([]types.Article, error)
	GetOwned(ctx context.Context, userID, id int64) (*types.Article, error)
	ResetForRetry(ctx context.Context, userID, id int64) (*types.Article, error)
	ConvertRecommendation(ctx context.Context, userID, id int64) (*types.Article, error)
	CompletedSince(ctx context.Context, userID int64, since time.Time, limit int) ([]types.Article, error)
}

// IngestQueue enqueues background jobs for submitted articles and
// recommendation runs.
type IngestQueue interface {
	EnqueueIngest(articleID int64) error
	EnqueuePersonalRecommend(userID int64) error
	EnqueueExploreRecommend(userID int64) error
}

// InterestDescriber turns recent article titles into a short natural-language
// interest summary. Optional; a nil describer leaves the stats field empty.
type InterestDescriber interface {
	DescribeInterests(ctx context.Context, titles []string) (string, error)
}

// ArticlesController serves the article submission and browsing endpoints.
type ArticlesController struct {
	store      ArticleStore
	queue      IngestQueue
	describer  InterestDescriber
	hostSuffix string
}

func NewArticlesController(st ArticleStore, queue IngestQueue, describer InterestDescriber, hostSuffix string) *ArticlesController {
	return &ArticlesController{store: st, queue: queue, describer: describer, hostSuffix: hostSuffix}
}

// RegisterArticleRoutes registers article endpoints.
func RegisterArticleRoutes(r *gin.Engine, ctrl *ArticlesController) {
	g := r.Group("/api/links")
	g.POST("", ctrl.handleCreate)
	g.GET("", ctrl.handleList)
	g.GET("/stats", ctrl.handleStats)
	g.GET("/:id", ctrl.handleGet)
	g.POST("/:id/retry", ctrl.handleRetry)
	g.POST("/:id/convert", ctrl.handleConvert)

	rec := r.Group("/api/recommend")
	rec.POST("/personal", ctrl.handleRecommendPersonal)
	rec.POST("/explore", ctrl.handleRecommendExplore)
}

// CreateLinkRequest is the submission payload.
type CreateLinkRequest struct {
	URL string `json:"url" binding:"required"`
}

// handleCreate stores a PENDING article and queues it for ingestion. A URL
// already PENDING/PROCESSING for the same user returns the in-flight row
// instead of creating a second one.
func (ctrl *ArticlesController) handleCreate(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	url := strings.TrimSpace(req.URL)
	// Minimal domain guard; full validation happens when the fetcher parses
	// the oid/aid identity.
	if !strings.Contains(url, ctrl.hostSuffix) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only " + ctrl.hostSuffix + " URLs are allowed"})
		return
	}

	article, reused, err := ctrl.store.CreatePending(c.Request.Context(), userID, url)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if reused {
		c.JSON(http.StatusOK, gin.H{
			"id":      article.ID,
			"status":  article.Status,
			"message": "Already queued/processing",
		})
		return
	}

	if err := ctrl.queue.EnqueueIngest(article.ID); err != nil {
		log.Printf("[api] enqueue of article %d failed: %v", article.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue article"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      article.ID,
		"status":  article.Status,
		"message": "Queued",
	})
}

// handleList returns the caller's articles, filterable by status and a text
// query, with a whitelisted ordering.
func (ctrl *ArticlesController) handleList(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	opts := store.ListOptions{
		Status:   types.Status(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Query:    strings.TrimSpace(c.Query("q")),
		Ordering: strings.TrimSpace(c.Query("ordering")),
	}

	articles, err := ctrl.store.List(c.Request.Context(), userID, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if articles == nil {
		articles = []types.Article{}
	}
	c.JSON(http.StatusOK, articles)
}

func (ctrl *ArticlesController) handleGet(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	article, err := ctrl.store.GetOwned(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, article)
}

// handleRetry resets a FAILED/PARTIAL/PENDING article to PENDING and queues
// it again. A PROCESSING article conflicts.
func (ctrl *ArticlesController) handleRetry(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	article, err := ctrl.store.ResetForRetry(c.Request.Context(), userID, id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(err, store.ErrStillProcessing):
			c.JSON(http.StatusConflict, gin.H{"error": "already processing"})
		case errors.Is(err, store.ErrNotRetryable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "retry not allowed for this status"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if err := ctrl.queue.EnqueueIngest(article.ID); err != nil {
		log.Printf("[api] re-enqueue of article %d failed: %v", article.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue article"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      article.ID,
		"status":  article.Status,
		"message": "Re-queued",
	})
}

// handleConvert promotes a RECOMMENDED article the caller wants to keep into
// a regular PENDING one and queues it for a full fetch.
func (ctrl *ArticlesController) handleConvert(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	article, err := ctrl.store.ConvertRecommendation(c.Request.Context(), userID, id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(err, store.ErrNotRecommended):
			c.JSON(http.StatusBadRequest, gin.H{"error": "only recommendations can be converted"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if err := ctrl.queue.EnqueueIngest(article.ID); err != nil {
		log.Printf("[api] enqueue of converted article %d failed: %v", article.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue article"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      article.ID,
		"status":  article.Status,
		"message": "Converted and queued",
	})
}

// handleRecommendPersonal queues a personalized recommendation run for the
// caller. The run itself happens on the worker side.
func (ctrl *ArticlesController) handleRecommendPersonal(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	if err := ctrl.queue.EnqueuePersonalRecommend(userID); err != nil {
		log.Printf("[api] personal recommend enqueue for user %d failed: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue recommendation run"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Recommendation run queued"})
}

// handleRecommendExplore queues an exploratory recommendation run.
func (ctrl *ArticlesController) handleRecommendExplore(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	if err := ctrl.queue.EnqueueExploreRecommend(userID); err != nil {
		log.Printf("[api] explore recommend enqueue for user %d failed: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue recommendation run"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Recommendation run queued"})
}

// StatsResponse summarizes a reader's completed history.
type StatsResponse struct {
	ReadCount       int               `json:"read_count"`
	TopTags         []TagCount        `json:"top_tags"`
	Persona         recommend.Persona `json:"persona"`
	InterestSummary string            `json:"interest_summary,omitempty"`
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// handleStats returns the top-5 tags and the reader persona over the last
// year of completed articles.
func (ctrl *ArticlesController) handleStats(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	since := time.Now().AddDate(-1, 0, 0)
	completed, err := ctrl.store.CompletedSince(c.Request.Context(), userID, since, 500)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	freq := make(map[string]int)
	var tags []string
	for _, a := range completed {
		for _, t := range a.Tags {
			freq[t]++
			tags = append(tags, t)
		}
	}
	top := make([]TagCount, 0, len(freq))
	for t, n := range freq {
		top = append(top, TagCount{Tag: t, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Tag < top[j].Tag
	})
	if len(top) > 5 {
		top = top[:5]
	}

	resp := StatsResponse{
		ReadCount: len(completed),
		TopTags:   top,
		Persona:   recommend.DeterminePersona(tags, len(completed)),
	}
	if ctrl.describer != nil && len(completed) > 0 {
		titles := make([]string, 0, 10)
		for _, a := range completed {
			if a.Title == "" {
				continue
			}
			titles = append(titles, a.Title)
			if len(titles) == 10 {
				break
			}
		}
		summary, err := ctrl.describer.DescribeInterests(c.Request.Context(), titles)
		if err != nil {
			log.Printf("[api] interest description for user %d failed: %v", userID, err)
		} else {
			resp.InterestSummary = summary
		}
	}

	c.JSON(http.StatusOK, resp)
}

func callerID(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.GetHeader(userIDHeader))
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": userIDHeader + " header is required"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid " + userIDHeader + " header"})
		return 0, false
	}
	return id, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
