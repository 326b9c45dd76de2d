package search

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"newskeep/types"

	"github.com/mmcdole/gofeed"
)

// RSSClient backs the searcher with a keyword-addressable RSS search feed,
// for deployments without API credentials. The feed URL must contain a %s
// placeholder for the encoded keyword.
type RSSClient struct {
	feedTemplate string
	parser       *gofeed.Parser
}

var _ Searcher = (*RSSClient)(nil)

// NewRSSClient builds an RSS-backed searcher.
func NewRSSClient(feedTemplate string) *RSSClient {
	return &RSSClient{
		feedTemplate: feedTemplate,
		parser:       gofeed.NewParser(),
	}
}

// Search implements Searcher over the RSS search feed.
func (c *RSSClient) Search(ctx context.Context, keyword string, limit int) ([]types.SearchItem, error) {
	feedURL := fmt.Sprintf(c.feedTemplate, url.QueryEscape(keyword))

	feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search feed: %w", err)
	}

	count := len(feed.Items)
	if count > limit {
		count = limit
	}

	items := make([]types.SearchItem, 0, count)
	for i := 0; i < count; i++ {
		item := feed.Items[i]

		var pubDate time.Time
		if item.PublishedParsed != nil {
			pubDate = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			pubDate = *item.UpdatedParsed
		}

		items = append(items, types.SearchItem{
			Title:       stripEmphasis(item.Title),
			Link:        item.Link,
			Description: stripEmphasis(item.Description),
			PubDate:     pubDate,
		})
	}
	return items, nil
}
