package span

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// Normalize validates, clips, and deduplicates the union of raw spans from
// all detectors against a text of textLen bytes. Degenerate spans (empty,
// inverted, or fully outside the text) are discarded and logged at debug;
// partially out-of-range spans are clipped. Exact duplicates on
// (start, end, native_label, source_id) collapse to one.
//
// The result is ordered by start, ties broken by descending confidence,
// which is the input contract of the conflict resolver.
func Normalize(raws []RawSpan, textLen int) []RawSpan {
	type key struct {
		start, end int
		label      string
		source     string
	}
	seen := make(map[key]struct{}, len(raws))
	kept := make([]RawSpan, 0, len(raws))

	for _, r := range raws {
		if err := r.Validate(textLen); err != nil {
			log.Debug().
				Err(err).
				Str("source_id", r.SourceID).
				Str("native_label", r.NativeLabel).
				Msg("discarding degenerate span")
			continue
		}
		r = r.Clip(textLen)
		k := key{r.Start, r.End, r.NativeLabel, r.SourceID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, r)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Start != kept[j].Start {
			return kept[i].Start < kept[j].Start
		}
		return kept[i].Confidence > kept[j].Confidence
	})

	return kept
}

// SortNormalized orders normalized spans by start, ties broken by
// descending confidence. Taxonomy mapping preserves order, so this is
// only needed when a caller assembles normalized spans by hand.
func SortNormalized(spans []NormalizedSpan) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].Confidence > spans[j].Confidence
	})
}
