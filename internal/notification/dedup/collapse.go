package dedup

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/portalsync/internal/notification/domain"
)

// Collapse hides display-equivalent notifications. items must be ordered
// newest first; within bucket of a kept item, later items sharing its
// title+message or its link+topic are dropped. The input is not modified.
func Collapse(items []domain.Notification, bucket time.Duration) []domain.Notification {
	if len(items) == 0 {
		return []domain.Notification{}
	}

	kept := make([]domain.Notification, 0, len(items))
	anchors := make(map[string]time.Time, len(items)*2)

	for _, item := range items {
		keys := collapseKeys(item)
		duplicate := false
		for _, key := range keys {
			anchor, ok := anchors[key]
			if ok && absDuration(anchor.Sub(item.CreatedAt)) <= bucket {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		for _, key := range keys {
			anchors[key] = item.CreatedAt
		}
		kept = append(kept, item)
	}
	return kept
}

func collapseKeys(n domain.Notification) []string {
	keys := []string{"tm:" + strings.TrimSpace(n.Title) + "\x00" + strings.TrimSpace(n.Message)}
	if link := n.LinkValue(); link != "" {
		keys = append(keys, "lt:"+link+"\x00"+Topic(n.Title))
	}
	return keys
}

// Topic is the first significant word of the title, accents and case folded.
func Topic(title string) string {
	tokens := strings.Split(slug.Make(title), "-")
	for _, token := range tokens {
		if len(token) >= 3 {
			return token
		}
	}
	if len(tokens) > 0 {
		return tokens[0]
	}
	return ""
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
