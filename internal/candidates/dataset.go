package candidates

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JSONSource reads a scraper dataset export: either a JSON array of items or
// one JSON object per line. Instagram and TikTok actor field names are both
// understood.
type JSONSource struct {
	Path string
	// Platform is used when an item's URL does not identify it.
	Platform string
}

// NewJSONSource builds a dataset source for path.
func NewJSONSource(path, platform string) *JSONSource {
	return &JSONSource{Path: path, Platform: strings.ToLower(strings.TrimSpace(platform))}
}

// Name implements Source.
func (s *JSONSource) Name() string { return "dataset:" + s.Path }

// Fetch implements Source.
func (s *JSONSource) Fetch(ctx context.Context) ([]Item, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ParseDataset(ctx, f, s.Platform)
}

// ParseDataset decodes dataset records from r. Records without an id or URL
// are skipped.
func ParseDataset(ctx context.Context, r io.Reader, platform string) ([]Item, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()
	var records []map[string]any
	if first == '[' {
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode dataset: %w", err)
		}
	} else {
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			var rec map[string]any
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("decode dataset record %d: %w", len(records)+1, err)
			}
			records = append(records, rec)
		}
	}

	items := make([]Item, 0, len(records))
	for _, rec := range records {
		if item, ok := parseRecord(rec, platform); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			return b[0], nil
		}
		if _, err := br.ReadByte(); err != nil {
			return 0, err
		}
	}
}

func parseRecord(rec map[string]any, platform string) (Item, bool) {
	stats, _ := rec["stats"].(map[string]any)
	author, _ := rec["authorMeta"].(map[string]any)

	item := Item{
		URL:      firstString(rec, "url", "webVideoUrl", "postUrl"),
		Caption:  strings.TrimSpace(firstString(rec, "caption", "text", "desc", "description")),
		Author:   firstString(rec, "ownerUsername", "author", "channelName"),
		Views:    clampCount(firstInt(rec, stats, "videoViewCount", "videoPlayCount", "playCount", "viewCount", "plays")),
		Likes:    clampCount(firstInt(rec, stats, "likesCount", "diggCount", "likes")),
		Comments: clampCount(firstInt(rec, stats, "commentsCount", "commentCount", "comments")),
		PostedAt: firstTime(rec, "timestamp", "createTimeISO", "createTime", "taken_at_timestamp", "uploadDate", "date"),
	}
	if item.Author == "" && author != nil {
		item.Author = firstString(author, "name", "nickName")
	}
	item.ExternalID = firstString(rec, "id", "pk", "videoId", "shortCode", "shortcode")
	if item.ExternalID == "" {
		if item.URL == "" {
			return Item{}, false
		}
		item.ExternalID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(item.URL)).String()
	}
	item.Platform = inferPlatform(item.URL)
	if item.Platform == "" {
		item.Platform = platform
	}
	if item.Platform == "" {
		return Item{}, false
	}
	return item, true
}

func firstString(rec map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := rec[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// firstInt returns the first non-zero counter found at the top level or in
// stats.
func firstInt(rec, stats map[string]any, keys ...string) int64 {
	for _, key := range keys {
		if n, ok := asInt(rec[key]); ok && n != 0 {
			return n
		}
		if stats != nil {
			if n, ok := asInt(stats[key]); ok && n != 0 {
				return n
			}
		}
	}
	return 0
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if i, err := strconv.ParseInt(strings.ReplaceAll(n, ",", ""), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func firstTime(rec map[string]any, keys ...string) *time.Time {
	for _, key := range keys {
		if t, ok := asTime(rec[key]); ok {
			return &t
		}
	}
	return nil
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case json.Number:
		secs, err := x.Int64()
		if err != nil || secs <= 0 {
			return time.Time{}, false
		}
		// Millisecond epochs appear in some exports.
		if secs > 1e12 {
			return time.UnixMilli(secs).UTC(), true
		}
		return time.Unix(secs, 0).UTC(), true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
			return time.Unix(secs, 0).UTC(), true
		}
	}
	return time.Time{}, false
}
