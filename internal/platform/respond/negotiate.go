package respond

import (
	"strconv"
	"strings"
)

type mediaRange struct {
	typ     string
	subtype string
	q       float64
}

// parseAccept splits an Accept header into media ranges. Types are lowercased,
// a bare type ("text") is read as "text/*", and a missing, malformed or
// out-of-range q parameter counts as 1.
func parseAccept(header string) []mediaRange {
	var ranges []mediaRange
	for part := range strings.SplitSeq(header, ",") {
		params := strings.Split(part, ";")
		mt := strings.ToLower(strings.TrimSpace(params[0]))
		if mt == "" {
			continue
		}
		typ, subtype, ok := strings.Cut(mt, "/")
		if !ok {
			subtype = "*"
		}
		r := mediaRange{typ: strings.TrimSpace(typ), subtype: strings.TrimSpace(subtype), q: 1}
		for _, p := range params[1:] {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
				continue
			}
			r.q = parseQuality(strings.TrimSpace(v))
		}
		ranges = append(ranges, r)
	}
	return ranges
}

func parseQuality(v string) float64 {
	q, err := strconv.ParseFloat(v, 64)
	if err != nil || q < 0 || q > 1 {
		return 1
	}
	return q
}

// specificity ranks how closely r names format ("json" or "cbor"); -1 means no
// match. The problem+ subtype ranks above the base subtype.
func specificity(r mediaRange, format string) int {
	switch {
	case r.typ == "*" && r.subtype == "*":
		return 0
	case r.typ != "application":
		return -1
	case r.subtype == "*":
		return 1
	case r.subtype == "*+"+format:
		return 2
	case r.subtype == format:
		return 3
	case r.subtype == "problem+"+format:
		return 4
	default:
		return -1
	}
}

type preference struct {
	q    float64
	rank int
}

// preferenceFor returns the q-value of the most specific range matching
// format, or a zero preference when nothing matches.
func preferenceFor(ranges []mediaRange, format string) preference {
	best := preference{rank: -1}
	for _, r := range ranges {
		s := specificity(r, format)
		if s < 0 {
			continue
		}
		if s > best.rank || (s == best.rank && r.q > best.q) {
			best = preference{q: r.q, rank: s}
		}
	}
	return best
}

// selectFormat reports whether the Accept header prefers CBOR over JSON.
// The q-value ranks first and specificity breaks ties (RFC 9110 section
// 12.5.1); JSON wins every remaining tie and is the default when neither
// format is acceptable.
func selectFormat(accept string) bool {
	ranges := parseAccept(accept)
	if len(ranges) == 0 {
		return false
	}
	cbor := preferenceFor(ranges, "cbor")
	if cbor.rank < 0 || cbor.q == 0 {
		return false
	}
	json := preferenceFor(ranges, "json")
	if json.rank < 0 || json.q == 0 {
		return true
	}
	if cbor.q != json.q {
		return cbor.q > json.q
	}
	return cbor.rank > json.rank
}
