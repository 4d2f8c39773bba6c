// Package span defines the common span representation shared by all
// detectors and pipeline stages, and the normalizer that sanitizes raw
// detector output before taxonomy mapping.
//
// Offsets are half-open byte offsets into the UTF-8 input text. Input text
// is expected to be NFC-normalized before detection so that all detectors
// see identical offsets.
package span

import (
	"errors"
	"fmt"
	"sort"
)

// Category is the canonical entity-type vocabulary all detector-native
// labels are mapped onto.
type Category string

// Canonical categories. CategoryOther is the catch-all for native labels
// without a taxonomy entry; it is kept (not dropped) to preserve recall
// for audit purposes.
const (
	CategoryPerson     Category = "PERSON"
	CategoryEmail      Category = "EMAIL"
	CategoryPhone      Category = "PHONE"
	CategoryAddress    Category = "ADDRESS"
	CategoryLocation   Category = "LOCATION"
	CategoryDate       Category = "DATE"
	CategorySSN        Category = "SSN"
	CategoryPassport   Category = "PASSPORT"
	CategoryCreditCard Category = "CREDIT_CARD"
	CategoryIBAN       Category = "IBAN"
	CategoryBankAcct   Category = "BANK_ACCOUNT"
	CategoryIPAddress  Category = "IP_ADDRESS"
	CategoryURL        Category = "URL"
	CategoryOther      Category = "OTHER"
)

// ErrDegenerateSpan marks a raw span that cannot be salvaged by clipping:
// empty or inverted interval, or entirely outside the text.
var ErrDegenerateSpan = errors.New("degenerate span")

// RawSpan is one detection as emitted by a detector adapter, before
// validation and taxonomy mapping. NativeLabel is the detector's own
// vocabulary (e.g. "EMAIL_ADDRESS", "B-PER", "creditcardnumber").
type RawSpan struct {
	Start       int     `json:"start"`
	End         int     `json:"end"`
	NativeLabel string  `json:"native_label"`
	Confidence  float64 `json:"confidence"`
	SourceID    string  `json:"source_id"`
}

// Validate checks the span against a text of textLen bytes. It returns
// ErrDegenerateSpan (wrapped) when the interval is empty, inverted, or
// lies entirely outside [0, textLen).
func (r RawSpan) Validate(textLen int) error {
	if r.End <= r.Start {
		return fmt.Errorf("%w: [%d,%d)", ErrDegenerateSpan, r.Start, r.End)
	}
	if r.End <= 0 || r.Start >= textLen {
		return fmt.Errorf("%w: [%d,%d) outside text of length %d", ErrDegenerateSpan, r.Start, r.End, textLen)
	}
	return nil
}

// Clip returns a copy with Start and End clamped to [0, textLen].
func (r RawSpan) Clip(textLen int) RawSpan {
	if r.Start < 0 {
		r.Start = 0
	}
	if r.End > textLen {
		r.End = textLen
	}
	return r
}

// NormalizedSpan is a validated, clipped span with its native label
// replaced by a canonical category.
type NormalizedSpan struct {
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	SourceID   string   `json:"source_id"`
}

// Len returns the span length in bytes.
func (n NormalizedSpan) Len() int { return n.End - n.Start }

// Overlaps reports whether two half-open intervals intersect.
func (n NormalizedSpan) Overlaps(o NormalizedSpan) bool {
	return n.Start < o.End && o.Start < n.End
}

// Alternative is a span that lost conflict resolution with boundaries
// differing from the winner. Kept on the CanonicalSpan for audit.
type Alternative struct {
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	SourceID   string   `json:"source_id"`
}

// CanonicalSpan is the conflict resolver's output. For one text the full
// canonical set is pairwise non-overlapping and sorted by Start.
// Confidence is the maximum among contributing normalized spans; Sources
// records provenance, including sources whose overlapping detection was
// discarded.
type CanonicalSpan struct {
	Start        int           `json:"start"`
	End          int           `json:"end"`
	Category     Category      `json:"category"`
	Confidence   float64       `json:"confidence"`
	Sources      []string      `json:"sources"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Len returns the span length in bytes.
func (c CanonicalSpan) Len() int { return c.End - c.Start }

// AddSource records a contributing source id, keeping Sources sorted and
// free of duplicates.
func (c *CanonicalSpan) AddSource(id string) {
	i := sort.SearchStrings(c.Sources, id)
	if i < len(c.Sources) && c.Sources[i] == id {
		return
	}
	c.Sources = append(c.Sources, "")
	copy(c.Sources[i+1:], c.Sources[i:])
	c.Sources[i] = id
}
