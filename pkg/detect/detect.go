// Package detect classifies conversation text into emotions, parts, and needs.
package detect

import (
	"context"
	"strings"
)

// Item is one classification hit in a transcript.
type Item struct {
	Label     string  `json:"label"`
	Category  string  `json:"category,omitempty"`
	Intensity float64 `json:"intensity,omitempty"`
	Frequency int     `json:"frequency,omitempty"`
}

// Result groups the classifier output by family.
type Result struct {
	Emotions []Item `json:"emotions"`
	Parts    []Item `json:"parts"`
	Needs    []Item `json:"needs"`
}

// Total counts the detected items across all families.
func (r *Result) Total() int {
	if r == nil {
		return 0
	}
	return len(r.Emotions) + len(r.Parts) + len(r.Needs)
}

// Pipeline sends transcript text to a classifier.
//
// Calls are fire-and-forget from the conversation engine's perspective:
// errors are logged by the caller and never block the conversation flow.
type Pipeline interface {
	AddMessage(ctx context.Context, text string) (*Result, error)
}

func (r *Result) normalize() {
	r.Emotions = normalizeItems(r.Emotions)
	r.Parts = normalizeItems(r.Parts)
	r.Needs = normalizeItems(r.Needs)
}

func normalizeItems(items []Item) []Item {
	out := items[:0]
	for _, item := range items {
		item.Label = strings.TrimSpace(item.Label)
		if item.Label == "" {
			continue
		}
		if item.Frequency <= 0 {
			item.Frequency = 1
		}
		if item.Intensity < 0 {
			item.Intensity = 0
		}
		if item.Intensity > 1 {
			item.Intensity = 1
		}
		out = append(out, item)
	}
	return out
}
