package candidates

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// FeedSource reads an RSS or Atom feed. YouTube channel feeds carry view and
// rating counts in their media:community block; other feeds yield items with
// zero counters that are scored on recency alone.
type FeedSource struct {
	Location string
	Platform string
	parser   *gofeed.Parser
}

// NewFeedSource builds a feed source for a URL or local file path.
func NewFeedSource(location, platform string) *FeedSource {
	return &FeedSource{
		Location: strings.TrimSpace(location),
		Platform: strings.ToLower(strings.TrimSpace(platform)),
		parser:   gofeed.NewParser(),
	}
}

// Name implements Source.
func (s *FeedSource) Name() string { return "feed:" + s.Location }

// Fetch implements Source.
func (s *FeedSource) Fetch(ctx context.Context) ([]Item, error) {
	feed, err := s.parse(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if item, ok := s.parseItem(entry); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *FeedSource) parse(ctx context.Context) (*gofeed.Feed, error) {
	if strings.HasPrefix(s.Location, "http://") || strings.HasPrefix(s.Location, "https://") {
		feed, err := s.parser.ParseURLWithContext(s.Location, ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch feed %s: %w", s.Location, err)
		}
		return feed, nil
	}
	f, err := os.Open(s.Location)
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()
	feed, err := s.parser.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", s.Location, err)
	}
	return feed, nil
}

func (s *FeedSource) parseItem(entry *gofeed.Item) (Item, bool) {
	item := Item{
		URL:     strings.TrimSpace(entry.Link),
		Caption: strings.TrimSpace(entry.Title),
	}
	if entry.Author != nil {
		item.Author = strings.TrimSpace(entry.Author.Name)
	}
	if entry.PublishedParsed != nil {
		t := entry.PublishedParsed.UTC()
		item.PostedAt = &t
	} else if entry.UpdatedParsed != nil {
		t := entry.UpdatedParsed.UTC()
		item.PostedAt = &t
	}

	item.ExternalID = extensionValue(entry.Extensions, "yt", "videoId")
	if item.ExternalID == "" {
		item.ExternalID = strings.TrimSpace(entry.GUID)
	}
	if item.ExternalID == "" {
		item.ExternalID = item.URL
	}
	if item.ExternalID == "" {
		return Item{}, false
	}

	if community := mediaCommunity(entry.Extensions); community != nil {
		item.Views = attrInt(community.Children["statistics"], "views")
		item.Likes = attrInt(community.Children["starRating"], "count")
	}

	item.Platform = inferPlatform(item.URL)
	if item.Platform == "" {
		item.Platform = s.Platform
	}
	if item.Platform == "" {
		return Item{}, false
	}
	return item, true
}

func extensionValue(exts ext.Extensions, namespace, name string) string {
	values := exts[namespace][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

func mediaCommunity(exts ext.Extensions) *ext.Extension {
	groups := exts["media"]["group"]
	if len(groups) == 0 {
		return nil
	}
	community := groups[0].Children["community"]
	if len(community) == 0 {
		return nil
	}
	return &community[0]
}

func attrInt(values []ext.Extension, attr string) int64 {
	if len(values) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(values[0].Attrs[attr]), 10, 64)
	if err != nil {
		return 0
	}
	return clampCount(n)
}
