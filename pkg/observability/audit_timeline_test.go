package observability

import (
	"testing"
	"time"
)

func TestTimelineRecord(t *testing.T) {
	tl := NewAuditTimeline()
	err := tl.Record(TimelineEntry{
		EntryType: EntryTypeAdmission,
		Repo:      "acme/widgets",
		Profile:   "baseline",
		Summary:   "admitted release event",
	})
	if err != nil {
		t.Fatal(err)
	}
	if tl.Count() != 1 {
		t.Fatalf("expected 1, got %d", tl.Count())
	}
}

func TestTimelineQueryByRepo(t *testing.T) {
	tl := NewAuditTimeline()
	tl.Record(TimelineEntry{EntryType: EntryTypeAdmission, Repo: "acme/widgets", Profile: "baseline", Summary: "a"})
	tl.Record(TimelineEntry{EntryType: EntryTypeScore, Repo: "acme/widgets", Profile: "baseline", Summary: "b"})
	tl.Record(TimelineEntry{EntryType: EntryTypeAdmission, Repo: "acme/other", Profile: "baseline", Summary: "c"})

	results := tl.Query(TimelineQuery{Repo: "acme/widgets"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results for acme/widgets, got %d", len(results))
	}
}

func TestTimelineQueryByType(t *testing.T) {
	tl := NewAuditTimeline()
	tl.Record(TimelineEntry{EntryType: EntryTypeAdmission, Repo: "acme/widgets", Summary: "a"})
	tl.Record(TimelineEntry{EntryType: EntryTypeScore, Repo: "acme/widgets", Summary: "b"})
	tl.Record(TimelineEntry{EntryType: EntryTypeAnchor, Repo: "acme/widgets", Summary: "c"})

	entryType := EntryTypeScore
	results := tl.Query(TimelineQuery{Repo: "acme/widgets", EntryType: &entryType})
	if len(results) != 1 {
		t.Fatalf("expected 1 SCORE, got %d", len(results))
	}
}

func TestTimelineQueryByTimeRange(t *testing.T) {
	tl := NewAuditTimeline()
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t3 := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)

	tl.Record(TimelineEntry{EntryType: EntryTypeAdmission, Timestamp: t1, Summary: "early"})
	tl.Record(TimelineEntry{EntryType: EntryTypeAdmission, Timestamp: t2, Summary: "mid"})
	tl.Record(TimelineEntry{EntryType: EntryTypeAdmission, Timestamp: t3, Summary: "late"})

	after := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)
	before := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	results := tl.Query(TimelineQuery{After: &after, Before: &before})
	if len(results) != 1 {
		t.Fatalf("expected 1 entry in range, got %d", len(results))
	}
	if results[0].Summary != "mid" {
		t.Fatalf("expected 'mid', got %s", results[0].Summary)
	}
}

func TestTimelineQueryLimit(t *testing.T) {
	tl := NewAuditTimeline()
	for i := 0; i < 10; i++ {
		tl.Record(TimelineEntry{EntryType: EntryTypeAdmission, Summary: "x"})
	}

	results := tl.Query(TimelineQuery{Limit: 3})
	if len(results) != 3 {
		t.Fatalf("expected 3, got %d", len(results))
	}
}

func TestTimelineContentHash(t *testing.T) {
	tl := NewAuditTimeline()
	tl.Record(TimelineEntry{
		EntryType: EntryTypeVerification,
		Summary:   "anchor proof replay verified",
		Details:   map[string]interface{}{"root": "abc"},
	})

	results := tl.Query(TimelineQuery{})
	if results[0].ContentHash == "" {
		t.Fatal("expected content hash")
	}
}

func TestTimelineQueryByProfile(t *testing.T) {
	tl := NewAuditTimeline()
	tl.Record(TimelineEntry{EntryType: EntryTypeAdmission, Profile: "baseline", Summary: "a"})
	tl.Record(TimelineEntry{EntryType: EntryTypeAdmission, Profile: "regulated", Summary: "b"})
	tl.Record(TimelineEntry{EntryType: EntryTypeAdmission, Profile: "baseline", Summary: "c"})

	results := tl.Query(TimelineQuery{Profile: "baseline"})
	if len(results) != 2 {
		t.Fatalf("expected 2 for baseline, got %d", len(results))
	}
}
