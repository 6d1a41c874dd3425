// Package media holds the normalized content model shared by every stage of
// the trending pipeline, plus the error taxonomy used across stages.
package media

import (
	"maps"
	"strings"
)

// Kind identifies which provider group an item belongs to.
type Kind int

const (
	KindMovie Kind = iota + 1
	KindShow
	KindAnime
)

// Kinds is the stable processing order for groups.
var Kinds = []Kind{KindMovie, KindShow, KindAnime}

func (k Kind) String() string {
	switch k {
	case KindMovie:
		return "movie"
	case KindShow:
		return "show"
	case KindAnime:
		return "anime"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool { return k >= KindMovie && k <= KindAnime }

// UntitledPlaceholder replaces a missing title.
const UntitledPlaceholder = "Untitled"

// Item is one media entry regardless of origin.
//
// Items are values: stages that add data return a copy (see With* helpers)
// and never write to a shared Raw map.
type Item struct {
	Kind      Kind
	ID        string
	Title     string
	Score     *float64
	VoteCount *int
	ImageRef  string
	Overview  string
	Raw       Raw

	// Watchers is set by enrichment; nil means unknown.
	Watchers *int
}

// NewItem builds an item and applies the title placeholder.
func NewItem(kind Kind, id, title string, raw Raw) Item {
	title = strings.TrimSpace(title)
	if title == "" {
		title = UntitledPlaceholder
	}
	return Item{Kind: kind, ID: strings.TrimSpace(id), Title: title, Raw: raw}
}

// WithRaw returns a copy whose Raw is the receiver's fields overlaid with extra.
func (it Item) WithRaw(extra Raw) Item {
	if len(extra) == 0 {
		return it
	}
	merged := make(Raw, len(it.Raw)+len(extra))
	maps.Copy(merged, it.Raw)
	maps.Copy(merged, extra)
	it.Raw = merged
	return it
}

// WithWatchers returns a copy with the watcher count set.
func (it Item) WithWatchers(n int) Item {
	it.Watchers = &n
	return it
}

// WithImage returns a copy with ImageRef set when it was empty.
func (it Item) WithImage(ref string) Item {
	if it.ImageRef == "" {
		it.ImageRef = strings.TrimSpace(ref)
	}
	return it
}

// Float returns a pointer to v. Handy for literals in adapters and tests.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
