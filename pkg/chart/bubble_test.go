package chart

import (
	"testing"
	"time"
)

func TestBubbles_MonotonicInFrequency(t *testing.T) {
	now := time.Now()
	items := []Item{
		{Label: "calm", Kind: KindEmotion, Frequency: 1, LastSeen: now},
		{Label: "anger", Kind: KindEmotion, Frequency: 4, LastSeen: now},
		{Label: "fear", Kind: KindEmotion, Frequency: 9, LastSeen: now},
	}
	bubbles := Bubbles(items, MetricFrequency, SizeConfig{MinRadius: 10, MaxRadius: 50}, now)
	if len(bubbles) != 3 {
		t.Fatalf("expected 3 bubbles, got %d", len(bubbles))
	}
	for i := 1; i < len(bubbles); i++ {
		if bubbles[i].Radius <= bubbles[i-1].Radius {
			t.Fatalf("radius not increasing with frequency: %v then %v", bubbles[i-1].Radius, bubbles[i].Radius)
		}
	}
	if bubbles[0].Radius != 10 {
		t.Fatalf("smallest item should get min radius, got %v", bubbles[0].Radius)
	}
	if bubbles[2].Radius != 50 {
		t.Fatalf("largest item should get max radius, got %v", bubbles[2].Radius)
	}
}

func TestBubbles_RecencyInverted(t *testing.T) {
	now := time.Now()
	items := []Item{
		{Label: "old", Kind: KindNeed, LastSeen: now.Add(-48 * time.Hour)},
		{Label: "mid", Kind: KindNeed, LastSeen: now.Add(-24 * time.Hour)},
		{Label: "new", Kind: KindNeed, LastSeen: now.Add(-1 * time.Hour)},
	}
	bubbles := Bubbles(items, MetricRecency, SizeConfig{MinRadius: 10, MaxRadius: 40}, now)
	for i := 1; i < len(bubbles); i++ {
		if bubbles[i].Radius <= bubbles[i-1].Radius {
			t.Fatalf("radius should decrease with age: index %d radius %v <= %v", i, bubbles[i].Radius, bubbles[i-1].Radius)
		}
	}
}

func TestBubbles_DegenerateRangeYieldsMinRadius(t *testing.T) {
	now := time.Now()
	items := []Item{
		{Label: "a", Kind: KindPart, Frequency: 3},
		{Label: "b", Kind: KindPart, Frequency: 3},
	}
	bubbles := Bubbles(items, MetricFrequency, SizeConfig{MinRadius: 12, MaxRadius: 60}, now)
	for _, b := range bubbles {
		if b.Radius != 12 {
			t.Fatalf("expected min radius for degenerate range, got %v", b.Radius)
		}
	}
}

func TestBubbles_SqrtScaling(t *testing.T) {
	now := time.Now()
	items := []Item{
		{Label: "lo", Kind: KindEmotion, Frequency: 0},
		{Label: "quarter", Kind: KindEmotion, Frequency: 1},
		{Label: "hi", Kind: KindEmotion, Frequency: 4},
	}
	bubbles := Bubbles(items, MetricFrequency, SizeConfig{MinRadius: 0, MaxRadius: 1}, now)
	// MinRadius <= 0 falls back to defaults; use explicit positive bounds instead.
	bubbles = Bubbles(items, MetricFrequency, SizeConfig{MinRadius: 10, MaxRadius: 30}, now)
	// norm(quarter) = 0.25, sqrt = 0.5 -> radius 20.
	got := bubbles[1].Radius
	if got < 19.999 || got > 20.001 {
		t.Fatalf("expected sqrt scaling to place mid item at 20, got %v", got)
	}
}

func TestMerge_CombinesDuplicates(t *testing.T) {
	now := time.Now()
	items := []Item{
		{Label: "anxiety", Kind: KindEmotion, Frequency: 2, Intensity: 0.4, LastSeen: now.Add(-time.Hour), ConversationID: "conv-aaaa-1111"},
		{Label: "anxiety", Kind: KindEmotion, Frequency: 1, Intensity: 0.9, LastSeen: now, ConversationID: "conv-bbbb-2222"},
		{Label: "anxiety", Kind: KindPart, Frequency: 1, Intensity: 0.1, LastSeen: now},
	}
	merged := Merge(items)
	if len(merged) != 2 {
		t.Fatalf("expected kinds to stay separate, got %d items", len(merged))
	}
	first := merged[0]
	if first.Frequency != 3 {
		t.Fatalf("expected summed frequency 3, got %d", first.Frequency)
	}
	if first.Intensity != 0.9 {
		t.Fatalf("expected peak intensity 0.9, got %v", first.Intensity)
	}
	if first.ConversationID != "conv-bbbb-2222" {
		t.Fatalf("expected most recent conversation id, got %q", first.ConversationID)
	}
}

func TestGroupByComplex(t *testing.T) {
	now := time.Now()
	items := []Item{
		{Label: "shame", Kind: KindEmotion, Frequency: 2, ConversationID: "c1"},
		{Label: "safety", Kind: KindNeed, Frequency: 5, ConversationID: "c2"},
		{Label: "drift", Kind: KindEmotion, Frequency: 1, ConversationID: "orphan"},
	}
	complexOf := func(conversationID string) string {
		switch conversationID {
		case "c1":
			return "complex-a"
		case "c2":
			return "complex-b"
		default:
			return ""
		}
	}
	groups := GroupByComplex(items, MetricFrequency, SizeConfig{MinRadius: 10, MaxRadius: 20}, now, complexOf)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	// Sorted order puts the empty (unassigned) group first.
	if groups[0].ComplexID != "" || len(groups[0].Bubbles) != 1 {
		t.Fatalf("unexpected unassigned group: %+v", groups[0])
	}
	if groups[1].ComplexID != "complex-a" || groups[2].ComplexID != "complex-b" {
		t.Fatalf("unexpected group order: %q, %q", groups[1].ComplexID, groups[2].ComplexID)
	}
}
