// Package magnet scores drop slots around a pointer. Everything here is a
// pure function of its inputs.
package magnet

import (
	"fmt"
	"math"
	"sort"
)

// Default scoring configuration constants.
const (
	defaultThreshold            = 100.0 // px
	defaultStrength             = 0.8
	defaultInertia              = 0.15 // seconds of velocity projected ahead
	defaultMaxAlternatives      = 3
	defaultMinGestureConfidence = 0.3
	defaultMaxSpeed             = 2000.0 // px/s at which gesture confidence bottoms out

	strongCutoff = 0.7
	mediumCutoff = 0.4
)

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithThreshold sets the magnetic field radius in pixels.
func WithThreshold(px float64) Option {
	return func(s *Scorer) {
		if px > 0 {
			s.threshold = px
		}
	}
}

// WithStrength sets the confidence scale, in (0,1].
func WithStrength(strength float64) Option {
	return func(s *Scorer) {
		if strength > 0 && strength <= 1 {
			s.strength = strength
		}
	}
}

// WithInertia sets how far along the velocity the pointer is projected.
func WithInertia(factor float64) Option {
	return func(s *Scorer) {
		if factor >= 0 {
			s.inertia = factor
		}
	}
}

// WithMaxAlternatives caps the free slots suggested for an occupied candidate.
func WithMaxAlternatives(n int) Option {
	return func(s *Scorer) {
		if n >= 0 {
			s.maxAlternatives = n
		}
	}
}

// WithMinGestureConfidence sets the floor of the gesture confidence.
func WithMinGestureConfidence(floor float64) Option {
	return func(s *Scorer) {
		if floor >= 0 && floor <= 1 {
			s.minGestureConfidence = floor
		}
	}
}

// WithMaxSpeed sets the speed at which gesture confidence reaches its floor.
func WithMaxSpeed(pxPerSecond float64) Option {
	return func(s *Scorer) {
		if pxPerSecond > 0 {
			s.maxSpeed = pxPerSecond
		}
	}
}

// Point is a screen-space location.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector is a pointer velocity in px/s.
type Vector struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// Rect is a slot bounding box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the geometric center of r.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Slot binds a ranking position to its on-screen box.
type Slot struct {
	Position int  `json:"position"`
	Bounds   Rect `json:"bounds"`
}

// Input is one scoring request.
type Input struct {
	Pointer  Point
	Velocity *Vector
	Slots    []Slot
	// Columns is the slot grid width used by the alternative search. Values
	// below 1 mean a single column.
	Columns  int
	Occupied map[int]bool
}

// Intensity is the glow class of a candidate.
type Intensity string

const (
	IntensityStrong Intensity = "strong"
	IntensityMedium Intensity = "medium"
	IntensityWeak   Intensity = "weak"
)

// Alternative is a free slot near an occupied candidate.
type Alternative struct {
	Position int     `json:"position"`
	Distance float64 `json:"distance"`
}

// Candidate is a slot inside the magnetic field.
type Candidate struct {
	Position        int           `json:"position"`
	Confidence      float64       `json:"confidence"`
	Distance        float64       `json:"distance"`
	IsTopSuggestion bool          `json:"is_top_suggestion"`
	Intensity       Intensity     `json:"intensity"`
	Reason          string        `json:"reason"`
	Occupied        bool          `json:"occupied"`
	Alternatives    []Alternative `json:"alternatives,omitempty"`
}

// Result is the scored field.
type Result struct {
	Projected         Point       `json:"projected"`
	Speed             float64     `json:"speed"`
	GestureConfidence float64     `json:"gesture_confidence"`
	Candidates        []Candidate `json:"candidates"`
}

// Scorer computes magnetic drop suggestions.
type Scorer struct {
	threshold            float64
	strength             float64
	inertia              float64
	maxAlternatives      int
	minGestureConfidence float64
	maxSpeed             float64
}

// NewScorer creates a Scorer with configuration options.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		threshold:            defaultThreshold,
		strength:             defaultStrength,
		inertia:              defaultInertia,
		maxAlternatives:      defaultMaxAlternatives,
		minGestureConfidence: defaultMinGestureConfidence,
		maxSpeed:             defaultMaxSpeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the magnetic field radius.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Score projects the pointer along its velocity, then scores every slot by
// the distance from the projected point to the slot center. Candidates come
// back ordered by confidence, highest first.
func (s *Scorer) Score(in Input) Result {
	projected := s.Project(in.Pointer, in.Velocity)
	speed := 0.0
	if in.Velocity != nil {
		speed = math.Hypot(in.Velocity.DX, in.Velocity.DY)
	}

	g := newGrid(in.Slots, in.Columns)
	candidates := make([]Candidate, 0, len(in.Slots))
	for _, slot := range in.Slots {
		d := distance(projected, slot.Bounds.Center())
		conf := s.Confidence(d)
		if conf <= 0 {
			continue
		}
		c := Candidate{
			Position:   slot.Position,
			Confidence: conf,
			Distance:   d,
			Intensity:  intensityOf(conf),
			Occupied:   in.Occupied[slot.Position],
		}
		if c.Occupied {
			c.Alternatives = g.alternatives(slot, in.Occupied, s.maxAlternatives)
			c.Reason = fmt.Sprintf("occupied, %d free nearby", len(c.Alternatives))
		} else {
			c.Reason = reasonFor(c.Intensity)
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Position < candidates[j].Position
	})
	if len(candidates) > 0 {
		candidates[0].IsTopSuggestion = true
	}

	return Result{
		Projected:         projected,
		Speed:             speed,
		GestureConfidence: s.GestureConfidence(speed),
		Candidates:        candidates,
	}
}

// Project moves p forward along v by the inertia factor.
func (s *Scorer) Project(p Point, v *Vector) Point {
	if v == nil {
		return p
	}
	return Point{X: p.X + v.DX*s.inertia, Y: p.Y + v.DY*s.inertia}
}

// Confidence maps a center distance to a score. Outside the field it is 0.
func (s *Scorer) Confidence(d float64) float64 {
	if d < 0 || d >= s.threshold {
		return 0
	}
	return s.strength * (1 - d/s.threshold)
}

// GestureConfidence falls with speed and never drops below the floor.
func (s *Scorer) GestureConfidence(speed float64) float64 {
	return math.Max(s.minGestureConfidence, 1-speed/s.maxSpeed)
}

func intensityOf(conf float64) Intensity {
	switch {
	case conf >= strongCutoff:
		return IntensityStrong
	case conf >= mediumCutoff:
		return IntensityMedium
	default:
		return IntensityWeak
	}
}

func reasonFor(i Intensity) string {
	switch i {
	case IntensityStrong:
		return "right on target"
	case IntensityMedium:
		return "close"
	default:
		return "in range"
	}
}

func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
