// Package chart computes bubble-chart sizing for detected conversation items.
//
// Sizing is area-proportional: the chosen metric is normalized over the
// observed min/max, square-rooted, and interpolated into a configured radius
// range. Recency is inverted so that more recent items map to larger radii.
package chart

import (
	"math"
	"sort"
	"time"
)

// Metric selects which attribute drives bubble size.
type Metric string

const (
	MetricFrequency Metric = "frequency"
	MetricIntensity Metric = "intensity"
	MetricRecency   Metric = "recency"
)

// Kind identifies the classification family of a detected item.
type Kind string

const (
	KindEmotion Kind = "emotion"
	KindPart    Kind = "part"
	KindNeed    Kind = "need"
)

// Item is one detected emotion, part, or need with its aggregate stats.
type Item struct {
	Label          string
	Kind           Kind
	Category       string
	Frequency      int
	Intensity      float64
	LastSeen       time.Time
	ConversationID string
}

// Bubble is an item with its computed radius.
type Bubble struct {
	Item
	Radius float64
}

// SizeConfig bounds the output radius range.
type SizeConfig struct {
	MinRadius float64
	MaxRadius float64
}

// DefaultSizeConfig matches the range used by the conversation charts.
func DefaultSizeConfig() SizeConfig {
	return SizeConfig{MinRadius: 24, MaxRadius: 64}
}

func (c SizeConfig) normalized() SizeConfig {
	if c.MinRadius <= 0 {
		c.MinRadius = DefaultSizeConfig().MinRadius
	}
	if c.MaxRadius < c.MinRadius {
		c.MaxRadius = c.MinRadius
	}
	return c
}

// metricValue maps an item onto the active metric. Recency returns the
// negated age so that newer items carry larger values.
func metricValue(item Item, metric Metric, now time.Time) float64 {
	switch metric {
	case MetricIntensity:
		return item.Intensity
	case MetricRecency:
		return -now.Sub(item.LastSeen).Seconds()
	default:
		return float64(item.Frequency)
	}
}

// Bubbles computes a radius for every item under the chosen metric.
// When all items share the same metric value, every bubble gets MinRadius.
func Bubbles(items []Item, metric Metric, cfg SizeConfig, now time.Time) []Bubble {
	cfg = cfg.normalized()
	out := make([]Bubble, 0, len(items))
	if len(items) == 0 {
		return out
	}

	lo := math.Inf(1)
	hi := math.Inf(-1)
	for _, item := range items {
		v := metricValue(item, metric, now)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	for _, item := range items {
		r := cfg.MinRadius
		if hi > lo {
			norm := (metricValue(item, metric, now) - lo) / (hi - lo)
			r = cfg.MinRadius + math.Sqrt(norm)*(cfg.MaxRadius-cfg.MinRadius)
		}
		out = append(out, Bubble{Item: item, Radius: r})
	}
	return out
}

// Merge collapses duplicate labels of the same kind into one item, summing
// frequency, keeping the peak intensity, and the most recent sighting.
func Merge(items []Item) []Item {
	type key struct {
		kind  Kind
		label string
	}
	order := make([]key, 0, len(items))
	merged := make(map[key]Item, len(items))
	for _, item := range items {
		k := key{kind: item.Kind, label: item.Label}
		existing, ok := merged[k]
		if !ok {
			if item.Frequency <= 0 {
				item.Frequency = 1
			}
			merged[k] = item
			order = append(order, k)
			continue
		}
		freq := item.Frequency
		if freq <= 0 {
			freq = 1
		}
		existing.Frequency += freq
		existing.Intensity = math.Max(existing.Intensity, item.Intensity)
		if item.LastSeen.After(existing.LastSeen) {
			existing.LastSeen = item.LastSeen
			existing.ConversationID = item.ConversationID
		}
		merged[k] = existing
	}

	out := make([]Item, 0, len(order))
	for _, k := range order {
		out = append(out, merged[k])
	}
	return out
}

// Group is the bubble set for one complex.
type Group struct {
	ComplexID string
	Bubbles   []Bubble
}

// GroupByComplex sizes items per complex so radii are comparable within a
// group. complexOf maps a conversation id to its owning complex id; items
// from conversations without a complex land under the empty group id.
func GroupByComplex(items []Item, metric Metric, cfg SizeConfig, now time.Time, complexOf func(conversationID string) string) []Group {
	byComplex := make(map[string][]Item)
	for _, item := range items {
		id := ""
		if complexOf != nil {
			id = complexOf(item.ConversationID)
		}
		byComplex[id] = append(byComplex[id], item)
	}

	ids := make([]string, 0, len(byComplex))
	for id := range byComplex {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groups := make([]Group, 0, len(ids))
	for _, id := range ids {
		groups = append(groups, Group{
			ComplexID: id,
			Bubbles:   Bubbles(byComplex[id], metric, cfg, now),
		})
	}
	return groups
}
