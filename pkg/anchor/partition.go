package anchor

import (
	"strings"

	"github.com/mcp-tool-shop-org/repomesh/pkg/eventlog"
)

// SelectorKind distinguishes the shape of a partition selector string.
type SelectorKind int

const (
	SelectorAll SelectorKind = iota
	SelectorGenesis
	SelectorDate
	SelectorSince
)

// ParseSelector classifies a partitionId string into its selector kind and,
// for "since:<iso-ts>", the timestamp it carries.
func ParseSelector(partitionID string) (kind SelectorKind, since string) {
	switch {
	case partitionID == "all":
		return SelectorAll, ""
	case partitionID == "genesis":
		return SelectorGenesis, ""
	case strings.HasPrefix(partitionID, "since:"):
		return SelectorSince, strings.TrimPrefix(partitionID, "since:")
	default:
		return SelectorDate, partitionID
	}
}

// NextPartitionID returns the partitionId the anchor engine should use for
// its next partition: "since:<ts-of-last-anchor>" if a previous anchor
// exists, otherwise "genesis".
func NextPartitionID(lastAnchorTimestamp string) string {
	if lastAnchorTimestamp == "" {
		return "genesis"
	}
	return "since:" + lastAnchorTimestamp
}

// SelectPartition returns the events belonging to partitionID, in log
// order, given the full ordered event list. For a "since:<ts>" selector it
// locates the first event (of any type) whose Timestamp equals ts and
// returns every event after it; if no event has that timestamp it returns
// no events.
func SelectPartition(events []eventlog.Event, partitionID string) ([]eventlog.Event, error) {
	kind, since := ParseSelector(partitionID)
	switch kind {
	case SelectorAll, SelectorGenesis:
		return events, nil
	case SelectorDate:
		var out []eventlog.Event
		for _, e := range events {
			if strings.HasPrefix(e.Timestamp, partitionID) {
				out = append(out, e)
			}
		}
		return out, nil
	case SelectorSince:
		idx := -1
		for i, e := range events {
			if e.Timestamp == since {
				idx = i
				break
			}
		}
		if idx < 0 {
			// No anchor at that exact timestamp found yet: treat as "nothing after" rather
			// than fail — the caller is responsible for having located the anchor event first.
			return nil, nil
		}
		return events[idx+1:], nil
	}
	return nil, nil
}
