// Package normalizer maps raw embedded items onto models.Post.
//
// Field names vary between page generations, so every field is read through
// an ordered alias list. Items without an id or a posting time are rejected;
// every other field has a default.
package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	errs "ttscraper/pkg/errors"
	"ttscraper/pkg/extractor"
	"ttscraper/pkg/models"
	"ttscraper/pkg/tiktok"
)

// ErrRejected is wrapped by every normalization failure
var ErrRejected = errs.New(errs.ErrorTypeParsing, "item rejected")

var (
	wrapperKeys = []string{"itemInfo", "itemStruct", "aweme_info", "item"}

	idAliases       = []string{"id", "video.id", "aweme_id", "awemeId", "video_id", "itemId"}
	postedAtAliases = []string{"createTime", "create_time", "timestamp", "epoch_time_posted"}
	statsContainers = []string{"stats", "statistics", "statsV2"}

	viewsAliases    = []string{"playCount", "play_count", "view_count", "viewCount", "views"}
	likesAliases    = []string{"diggCount", "digg_count", "like_count", "likeCount", "likes"}
	commentsAliases = []string{"commentCount", "comment_count", "comments"}
	sharesAliases   = []string{"shareCount", "share_count", "shares"}

	descriptionAliases = []string{"desc", "description", "title", "caption"}
	urlAliases         = []string{"shareUrl", "share_url", "webVideoUrl", "url", "video.downloadAddr", "video.download_addr"}
	authorAliases      = []string{"author.uniqueId", "authorMeta.name", "author"}
)

// Normalize converts one raw item. contextHandle is the profile being fetched
// and is used to build the canonical URL when the item has none.
func Normalize(raw extractor.RawItem, contextHandle string) (post models.Post, err error) {
	defer func() {
		if r := recover(); r != nil {
			post = models.Post{}
			err = fmt.Errorf("%w: %v", ErrRejected, r)
		}
	}()

	item := unwrap(raw)

	id, ok := firstString(item, idAliases)
	if !ok {
		return models.Post{}, fmt.Errorf("%w: missing id", ErrRejected)
	}

	postedAt, ok := firstInt(item, postedAtAliases)
	if !ok {
		return models.Post{}, fmt.Errorf("%w: item %s has no usable posting time", ErrRejected, id)
	}
	if postedAt < 0 {
		return models.Post{}, fmt.Errorf("%w: item %s has negative posting time %d", ErrRejected, id, postedAt)
	}

	description, _ := firstString(item, descriptionAliases)

	return models.Post{
		ID:          id,
		URL:         postURL(item, id, contextHandle),
		Description: description,
		PostedAt:    postedAt,
		Views:       stat(item, viewsAliases),
		Likes:       stat(item, likesAliases),
		Comments:    stat(item, commentsAliases),
		Shares:      stat(item, sharesAliases),
	}, nil
}

// NormalizeAll converts items in order, dropping rejects. It returns the
// accepted posts and how many items were rejected.
func NormalizeAll(items []extractor.RawItem, contextHandle string) ([]models.Post, int) {
	posts := make([]models.Post, 0, len(items))
	rejected := 0

	for _, raw := range items {
		post, err := Normalize(raw, contextHandle)
		if err != nil {
			rejected++
			continue
		}
		posts = append(posts, post)
	}

	return posts, rejected
}

// maxUnwrapDepth bounds how many nested wrappers unwrap follows
const maxUnwrapDepth = 3

// unwrap merges nested wrapper objects over the outer item, innermost last,
// so {"itemInfo":{"itemStruct":{...}}} yields the itemStruct fields.
// At each level only the first wrapper key present is followed.
// The input is never modified.
func unwrap(raw extractor.RawItem) map[string]any {
	merged := make(map[string]any, len(raw))
	for k, v := range raw {
		merged[k] = v
	}

	current := map[string]any(raw)
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		inner, ok := firstWrapper(current)
		if !ok {
			break
		}
		for k, v := range inner {
			merged[k] = v
		}
		current = inner
	}

	return merged
}

func firstWrapper(item map[string]any) (map[string]any, bool) {
	for _, key := range wrapperKeys {
		if inner, ok := asMap(item[key]); ok {
			return inner, true
		}
	}
	return nil, false
}

func postURL(item map[string]any, id, contextHandle string) string {
	if candidate, ok := firstString(item, urlAliases); ok && validURL(candidate) {
		return candidate
	}

	handle := tiktok.SanitizeHandle(contextHandle)
	if handle == "" {
		author, _ := firstString(item, authorAliases)
		handle = tiktok.SanitizeHandle(author)
	}

	return tiktok.GetVideoURL(handle, id)
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// stat reads a counter from the stats containers, then from the item itself.
// Missing or unparseable values are 0 and negatives are clamped to 0.
func stat(item map[string]any, aliases []string) int64 {
	for _, container := range statsContainers {
		stats, ok := asMap(item[container])
		if !ok {
			continue
		}
		if v, found := first(stats, aliases); found {
			return clamp(v)
		}
	}

	if v, found := first(item, aliases); found {
		return clamp(v)
	}
	return 0
}

func clamp(v any) int64 {
	n, ok := toInt(v)
	if !ok || n < 0 {
		return 0
	}
	return n
}

// first returns the value of the first alias present with a non-null value.
// Aliases may use dots to reach into nested objects.
func first(item map[string]any, aliases []string) (any, bool) {
	for _, alias := range aliases {
		if v, ok := lookup(item, alias); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(item map[string]any, aliases []string) (string, bool) {
	for _, alias := range aliases {
		v, ok := lookup(item, alias)
		if !ok {
			continue
		}
		if s, ok := toString(v); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func firstInt(item map[string]any, aliases []string) (int64, bool) {
	for _, alias := range aliases {
		v, ok := lookup(item, alias)
		if !ok {
			continue
		}
		if n, ok := toInt(v); ok {
			return n, true
		}
	}
	return 0, false
}

func lookup(item map[string]any, path string) (any, bool) {
	current := item
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := asMap(v)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case extractor.RawItem:
		return m, true
	default:
		return nil, false
	}
}

// toString renders identifiers and text. Numbers are written without exponent.
func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case json.Number:
		if _, err := s.Int64(); err == nil {
			return s.String(), true
		}
		f, err := s.Float64()
		if err != nil {
			return "", false
		}
		return formatFloat(f), true
	case float64:
		return formatFloat(s), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	default:
		return "", false
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e18 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// toInt accepts integers, floats (truncated) and numeric strings
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case float64:
		return floatToInt(n)
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
