package rest

import (
	"strings"
)

// Prefer holds preferences from the Prefer header (RFC 7240).
type Prefer struct {
	Return string // "minimal" or "representation"
	Count  string // "exact"
}

// parsePrefer parses the Prefer header according to RFC 7240.
// It returns nil if the header is not present.
func parsePrefer(header string) *Prefer {
	if header == "" {
		return nil
	}

	p := &Prefer{
		Return: "representation",
	}

	parseKeyValPairs(header, func(key, value string) {
		switch key {
		case "return":
			if isValidReturn(value) {
				p.Return = strings.ToLower(value)
			}
		case "count":
			if strings.EqualFold(value, "exact") {
				p.Count = "exact"
			}
		}
	})

	return p
}

// parseKeyValPairs parses comma-separated preference directives.
// For each key=value pair found, it calls fn with the key and value.
func parseKeyValPairs(header string, fn func(key, value string)) {
	for pref := range strings.SplitSeq(header, ",") {
		pref = strings.TrimSpace(pref)
		if key, value, found := strings.Cut(pref, "="); found {
			key = strings.TrimSpace(strings.ToLower(key))       // normalize case
			value = strings.Trim(strings.TrimSpace(value), `"`) // remove quotes
			fn(key, value)
		}
	}
}

// isValidReturn reports whether s is a valid return preference value.
func isValidReturn(s string) bool {
	switch strings.ToLower(s) {
	case "minimal", "representation":
		return true
	}
	return false
}

// WantsMinimal reports whether the client asked for no body on mutations.
func (p *Prefer) WantsMinimal() bool {
	return p != nil && p.Return == "minimal"
}

// WantsCountExact reports whether the client wants an exact count in the response.
func (p *Prefer) WantsCountExact() bool {
	return p != nil && p.Count == "exact"
}
