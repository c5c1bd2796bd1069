// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package features

import (
	"fmt"
	"sort"
)

// Feature group names, listed in flatten order.
const (
	GroupPOSTags       = "pos_tags"
	GroupEntities      = "entities"
	GroupTextStats     = "text_stats"
	GroupTextEmbedding = "text_embedding"
	GroupImageFeatures = "image_features"
)

// TextStatsWidth is the length of the text_stats group.
const TextStatsWidth = 6

// Bundle maps a feature group name to its values. A group is absent when its
// modality was disabled or missing from the input; absence means "no
// signal", which callers must not confuse with a zero vector.
type Bundle map[string][]float64

// Names returns the group names present in b, sorted.
func (b Bundle) Names() []string {
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// GroupSpec is one group's slot in a flattened row.
type GroupSpec struct {
	Name  string `json:"name"`
	Width int    `json:"width"`
}

// Layout is the ordered column layout a Config produces. Two extractors built
// from equal configs always share a layout.
type Layout struct {
	Groups []GroupSpec `json:"groups"`
}

// Width is the total row length.
func (l Layout) Width() int {
	n := 0
	for _, g := range l.Groups {
		n += g.Width
	}
	return n
}

// Row flattens b into a single vector in layout order. Absent groups and the
// empty image marker are zero-filled here, at the model boundary, so every
// row has Width() columns. Groups not in the layout are ignored.
func (l Layout) Row(b Bundle) ([]float64, error) {
	row := make([]float64, 0, l.Width())
	for _, g := range l.Groups {
		vals, ok := b[g.Name]
		switch {
		case !ok || len(vals) == 0:
			row = append(row, make([]float64, g.Width)...)
		case len(vals) != g.Width:
			return nil, fmt.Errorf("group %s has %d values, layout expects %d", g.Name, len(vals), g.Width)
		default:
			row = append(row, vals...)
		}
	}
	return row, nil
}

// Check verifies every present group matches the layout's width. The empty
// image marker is accepted.
func (l Layout) Check(b Bundle) error {
	widths := make(map[string]int, len(l.Groups))
	for _, g := range l.Groups {
		widths[g.Name] = g.Width
	}
	for name, vals := range b {
		want, ok := widths[name]
		if !ok {
			return fmt.Errorf("unexpected group %s", name)
		}
		if len(vals) != want && !(name == GroupImageFeatures && len(vals) == 0) {
			return fmt.Errorf("group %s has %d values, want %d", name, len(vals), want)
		}
	}
	return nil
}
