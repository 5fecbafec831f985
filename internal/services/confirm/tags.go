package confirm

import "strings"

// Tag is a canonical confirmation tag.
type Tag string

const (
	TagStructureShift          Tag = "structure_shift"
	TagStructureShiftConfirmed Tag = "structure_shift_confirmed"
	TagGap                     Tag = "gap"
	TagReactionZone            Tag = "reaction_zone"
	TagBreaker                 Tag = "breaker"
	TagSweep                   Tag = "sweep"
	TagOptimalEntry            Tag = "optimal_entry"
)

var synonyms = map[string]Tag{
	"structure_shift":           TagStructureShift,
	"shift":                     TagStructureShift,
	"bos":                       TagStructureShift,
	"choch":                     TagStructureShift,
	"mss":                       TagStructureShift,
	"market_structure_shift":    TagStructureShift,
	"break_of_structure":        TagStructureShift,
	"structure_shift_confirmed": TagStructureShiftConfirmed,
	"confirmed_shift":           TagStructureShiftConfirmed,
	"bos_confirmed":             TagStructureShiftConfirmed,
	"mss_confirmed":             TagStructureShiftConfirmed,
	"gap":                       TagGap,
	"fvg":                       TagGap,
	"fair_value_gap":            TagGap,
	"imbalance":                 TagGap,
	"reaction_zone":             TagReactionZone,
	"order_block":               TagReactionZone,
	"ob":                        TagReactionZone,
	"demand_zone":               TagReactionZone,
	"supply_zone":               TagReactionZone,
	"breaker":                   TagBreaker,
	"breaker_block":             TagBreaker,
	"bb":                        TagBreaker,
	"sweep":                     TagSweep,
	"liquidity_sweep":           TagSweep,
	"liquidity_grab":            TagSweep,
	"stop_hunt":                 TagSweep,
	"optimal_entry":             TagOptimalEntry,
	"ote":                       TagOptimalEntry,
	"fib_entry":                 TagOptimalEntry,
}

// TagSet is an ordered set of distinct canonical tags.
type TagSet struct {
	tags []Tag
}

// Canonicalize folds synonyms into the canonical vocabulary, keeping first
// occurrence order. Unknown tags are kept in normalized form. When collapse is
// set the confirmed structure-shift variant folds into plain structure_shift.
func Canonicalize(raw []string, collapse bool) TagSet {
	var set TagSet
	for _, r := range raw {
		key := normalize(r)
		if key == "" {
			continue
		}
		tag, ok := synonyms[key]
		if !ok {
			tag = Tag(key)
		}
		if collapse && tag == TagStructureShiftConfirmed {
			tag = TagStructureShift
		}
		if !set.Has(tag) {
			set.tags = append(set.tags, tag)
		}
	}
	return set
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// Has reports whether tag is in the set.
func (s TagSet) Has(tag Tag) bool { return s.Index(tag) >= 0 }

// Index returns the position of tag, or -1.
func (s TagSet) Index(tag Tag) int {
	for i, t := range s.tags {
		if t == tag {
			return i
		}
	}
	return -1
}

// Len returns the number of distinct tags.
func (s TagSet) Len() int { return len(s.tags) }

// Tags returns a copy of the tags in order.
func (s TagSet) Tags() []Tag { return append([]Tag(nil), s.tags...) }

// Strings returns the tags as plain strings.
func (s TagSet) Strings() []string {
	out := make([]string, len(s.tags))
	for i, t := range s.tags {
		out[i] = string(t)
	}
	return out
}

// hasShift treats the confirmed variant as a structure shift too.
func (s TagSet) hasShift() bool {
	return s.Has(TagStructureShift) || s.Has(TagStructureShiftConfirmed)
}

func (s TagSet) shiftIndex() int {
	a, b := s.Index(TagStructureShift), s.Index(TagStructureShiftConfirmed)
	switch {
	case a < 0:
		return b
	case b < 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}
