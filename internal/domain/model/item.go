// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"slices"
	"strings"
)

// ItemSnapshot is the denormalized copy of a backlog item the engine carries.
// The backlog owns the item lifecycle; the engine only keeps this snapshot.
type ItemSnapshot struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// IsZero reports whether the snapshot carries no identity.
func (i ItemSnapshot) IsZero() bool {
	return strings.TrimSpace(i.ID) == ""
}

// Clone returns a copy that shares no slices with i.
func (i ItemSnapshot) Clone() ItemSnapshot {
	i.Tags = slices.Clone(i.Tags)
	return i
}

// Source records which ranking view produced an assignment.
type Source string

const (
	SourceDirect  Source = "direct"
	SourceBracket Source = "bracket"
	SourceTier    Source = "tier"
	SourceAuto    Source = "auto"
)

// ParseSource converts boundary input into a Source. Empty input means direct.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceDirect:
		return SourceDirect, nil
	case SourceBracket:
		return SourceBracket, nil
	case SourceTier:
		return SourceTier, nil
	case SourceAuto:
		return SourceAuto, nil
	}
	return "", fmt.Errorf("unknown assignment source %q", s)
}
