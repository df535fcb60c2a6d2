package messaging

import (
	"sort"
	"time"

	"github.com/wander-app/wander/internal/domain"
)

// collapseWindow bounds how far apart an optimistic entry and its canonical
// counterpart may be and still count as the same message.
const collapseWindow = time.Minute

// Apply merges an incoming push message into the canonical list and returns
// the new list. It is a pure function; the transport may redeliver or reorder
// events, so the invariants live here, not in delivery order:
//
//   - a message with an already-present id is dropped
//   - an optimistic entry matching the incoming canonical one (same sender
//     and content, timestamps within the collapse window) is replaced by it
//   - the result is sorted by timestamp ascending
func Apply(list []domain.Message, incoming domain.Message) []domain.Message {
	for _, m := range list {
		if m.ID == incoming.ID {
			return list
		}
	}

	out := make([]domain.Message, 0, len(list)+1)
	collapsed := false
	for _, m := range list {
		if !collapsed && m.Optimistic && matchesOptimistic(m, incoming) {
			collapsed = true
			continue
		}
		out = append(out, m)
	}
	out = append(out, incoming)
	sortByTimestamp(out)
	return out
}

// ApplyPage merges a fetched message page into the list. Optimistic entries
// survive unless the page contains their canonical counterpart.
func ApplyPage(list []domain.Message, page []domain.Message) []domain.Message {
	out := list
	for _, m := range page {
		out = Apply(out, m)
	}
	return out
}

// AppendOptimistic inserts a provisional message. A dangling optimistic entry
// with the same sender and content inside the collapse window is replaced, so
// at most one provisional entry per (sender, content, window) is pending.
func AppendOptimistic(list []domain.Message, msg domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(list)+1)
	for _, m := range list {
		if m.Optimistic && !m.Failed && matchesOptimistic(m, msg) {
			continue
		}
		out = append(out, m)
	}
	out = append(out, msg)
	sortByTimestamp(out)
	return out
}

func matchesOptimistic(optimistic, canonical domain.Message) bool {
	if optimistic.SenderID != canonical.SenderID || optimistic.Content != canonical.Content {
		return false
	}
	d := canonical.Timestamp.Sub(optimistic.Timestamp)
	if d < 0 {
		d = -d
	}
	return d <= collapseWindow
}

func sortByTimestamp(list []domain.Message) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.Before(list[j].Timestamp)
	})
}
