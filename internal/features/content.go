// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package features

// Content is one item submitted for extraction. Text is a pointer so an
// absent field can be told apart from an empty string. Images follows the
// same rule through nil versus empty: a present but empty list still yields
// an empty image group.
type Content struct {
	Text   *string  `json:"text,omitempty"`
	Images []string `json:"images,omitempty"`
}

// HasText reports whether a text field was supplied.
func (c Content) HasText() bool { return c.Text != nil }

// HasImages reports whether an images field was supplied.
func (c Content) HasImages() bool { return c.Images != nil }

// TextContent is a convenience constructor.
func TextContent(text string) Content { return Content{Text: &text} }
