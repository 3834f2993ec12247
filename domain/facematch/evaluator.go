// Package facematch compares a live face descriptor against the descriptors a
// user enrolled earlier and decides whether the capture can be trusted without
// a human looking at it.
package facematch

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultThreshold     = 0.5
	DefaultDimension     = 128
	DefaultMinReferences = 3
)

// Verdict is the outcome of a comparison. VerdictNone means no comparison was
// attempted for the event.
type Verdict string

const (
	VerdictNone        Verdict = ""
	VerdictApproved    Verdict = "approved"
	VerdictNeedsReview Verdict = "needs_review"
)

func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(s); v {
	case VerdictNone, VerdictApproved, VerdictNeedsReview:
		return v, nil
	}
	return VerdictNone, fmt.Errorf("unknown verdict %q", s)
}

// Reason tells why a capture was sent to review.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonCaptureError      Reason = "capture_error"
	ReasonMissingProfile    Reason = "missing_profile"
	ReasonMissingDescriptor Reason = "missing_descriptor"
	ReasonDistanceExceeded  Reason = "distance_exceeded"
)

var ErrMalformedDescriptor = errors.New("malformed face descriptor")

type Descriptor []float64

// Capture is what the client sent along with the evidence image.
type Capture struct {
	Descriptor Descriptor
	// Error is set by the client when it failed to extract a face.
	Error string
}

type Result struct {
	Verdict Verdict
	// Score is the closest distance found; nil when nothing was compared.
	Score      *float64
	Reason     Reason
	References int
	Threshold  float64
}

type Evaluator struct {
	Threshold     float64
	Dimension     int
	MinReferences int
}

func New(threshold float64, dimension, minReferences int) Evaluator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if minReferences <= 0 {
		minReferences = DefaultMinReferences
	}
	return Evaluator{Threshold: threshold, Dimension: dimension, MinReferences: minReferences}
}

// Validate rejects descriptors that cannot be compared at all. An empty
// descriptor is valid: it means the client found no face.
func (e Evaluator) Validate(d Descriptor) error {
	if len(d) == 0 {
		return nil
	}
	if len(d) != e.Dimension {
		return fmt.Errorf("%w: expected %d components, got %d", ErrMalformedDescriptor, e.Dimension, len(d))
	}
	for i, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: component %d is not a finite number", ErrMalformedDescriptor, i)
		}
	}
	return nil
}

// Enrolled reports whether the references are enough to compare against.
func (e Evaluator) Enrolled(references []Descriptor) bool {
	return len(e.usable(references)) >= e.MinReferences
}

func (e Evaluator) Evaluate(capture Capture, references []Descriptor) Result {
	usable := e.usable(references)
	res := Result{
		Verdict:    VerdictNeedsReview,
		References: len(usable),
		Threshold:  e.Threshold,
	}

	switch {
	case capture.Error != "":
		res.Reason = ReasonCaptureError
		return res
	case len(usable) == 0 || len(usable) < e.MinReferences:
		res.Reason = ReasonMissingProfile
		return res
	case len(capture.Descriptor) == 0:
		res.Reason = ReasonMissingDescriptor
		return res
	}

	best := math.Inf(1)
	for _, ref := range usable {
		if d := Distance(capture.Descriptor, ref); d < best {
			best = d
		}
	}
	res.Score = &best
	if best <= e.Threshold {
		res.Verdict = VerdictApproved
	} else {
		res.Reason = ReasonDistanceExceeded
	}
	return res
}

func (e Evaluator) usable(references []Descriptor) []Descriptor {
	out := make([]Descriptor, 0, len(references))
	for _, ref := range references {
		if e.Validate(ref) == nil && len(ref) > 0 {
			out = append(out, ref)
		}
	}
	return out
}

// Distance is the euclidean distance between two descriptors of equal length.
func Distance(a, b Descriptor) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
