package response

import "sort"

// planKeys are the top-level fields of a lesson plan reply.
var planKeys = map[string]bool{
	"title":               true,
	"objectives":          true,
	"materials":           true,
	"activities":          true,
	"student_adaptations": true,
	"assessment":          true,
	"notes":               true,
}

// planCandidate is one top-level {...} span found in a reply.
type planCandidate struct {
	text string
	// keys counts distinct lesson plan fields named directly in the object.
	keys int
}

// findPlanCandidates returns every top-level {...} span in s, in order, with
// the number of lesson plan keys it declares at its own top level. Braces
// inside JSON strings and escaped quotes are skipped.
//
// Iterating bytes is safe for the ASCII delimiters because UTF-8 never uses
// them inside multi-byte sequences.
func findPlanCandidates(s string) []planCandidate {
	var out []planCandidate
	var depth int
	start, strStart := -1, -1
	var inString, escape bool
	seen := map[string]bool{}

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			switch b {
			case '\\':
				escape = true
			case '"':
				inString = false
				if depth == 1 && isKey(s, i+1) {
					if k := s[strStart:i]; planKeys[k] {
						seen[k] = true
					}
				}
			}
			continue
		}

		switch b {
		case '"':
			inString = true
			strStart = i + 1
		case '{':
			if depth == 0 {
				start = i
				seen = map[string]bool{}
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					out = append(out, planCandidate{text: s[start : i+1], keys: len(seen)})
					start = -1
				}
			}
		}
	}
	return out
}

// isKey reports whether the next non-space byte from i is a colon.
func isKey(s string, i int) bool {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		case ':':
			return true
		default:
			return false
		}
	}
	return false
}

// rankCandidates orders candidates by plan keys, then size, both descending.
// Objects with no plan keys at all are dropped.
func rankCandidates(c []planCandidate) []planCandidate {
	out := c[:0:0]
	for _, pc := range c {
		if pc.keys > 0 {
			out = append(out, pc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].keys != out[j].keys {
			return out[i].keys > out[j].keys
		}
		return len(out[i].text) > len(out[j].text)
	})
	return out
}
