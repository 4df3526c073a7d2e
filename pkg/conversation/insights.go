package conversation

import (
	"time"

	"github.com/attune-app/attune/pkg/chart"
	"github.com/attune-app/attune/pkg/detect"
)

// Insights aggregates detection results across the conversation.
type Insights struct {
	Items []chart.Item

	Emotions int
	Parts    int
	Needs    int

	// ChartEnabled becomes true once anything has been detected.
	ChartEnabled bool
	// AutoExpand requests the expanded chart view; it is set only when the
	// latest turn's detection produced new items.
	AutoExpand bool

	LastSessionID string
}

func (in Insights) snapshot() Insights {
	out := in
	out.Items = make([]chart.Item, len(in.Items))
	copy(out.Items, in.Items)
	return out
}

func (in *Insights) apply(result *detect.Result, session string, now time.Time, latest bool) {
	added := 0
	added += in.addItems(result.Emotions, chart.KindEmotion, session, now)
	added += in.addItems(result.Parts, chart.KindPart, session, now)
	added += in.addItems(result.Needs, chart.KindNeed, session, now)

	in.Emotions = in.countKind(chart.KindEmotion)
	in.Parts = in.countKind(chart.KindPart)
	in.Needs = in.countKind(chart.KindNeed)

	if len(in.Items) > 0 {
		in.ChartEnabled = true
	}
	if latest {
		in.AutoExpand = added > 0
		in.LastSessionID = session
	}
}

func (in *Insights) addItems(items []detect.Item, kind chart.Kind, session string, now time.Time) int {
	if len(items) == 0 {
		return 0
	}
	converted := make([]chart.Item, 0, len(items))
	for _, item := range items {
		converted = append(converted, chart.Item{
			Label:          item.Label,
			Kind:           kind,
			Category:       item.Category,
			Frequency:      item.Frequency,
			Intensity:      item.Intensity,
			LastSeen:       now,
			ConversationID: session,
		})
	}
	in.Items = chart.Merge(append(in.Items, converted...))
	return len(converted)
}

func (in *Insights) countKind(kind chart.Kind) int {
	n := 0
	for _, item := range in.Items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}
