package pricing

import "strings"

// Known alias spellings mapped to the canonical ticker used as the storage
// key. Some providers report KLA Corporation as "KLA" while the ledger and
// Alpha Vantage use "KLAC".
var aliasToCanonical = map[string]string{
	"KLA": "KLAC",
}

var canonicalToAliases = buildCanonicalAliases()

func buildCanonicalAliases() map[string][]string {
	result := make(map[string][]string)
	for alias, canonical := range aliasToCanonical {
		result[canonical] = append(result[canonical], alias)
	}
	return result
}

// Normalize trims and upper-cases a raw ticker and resolves known aliases to
// their canonical spelling. Unknown symbols pass through unchanged.
func Normalize(symbol string) string {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if canonical, ok := aliasToCanonical[upper]; ok {
		return canonical
	}
	return upper
}

// LookupCandidates returns the canonical symbol together with every known
// alias spelling, for ledger lookups that may predate normalization.
func LookupCandidates(symbol string) []string {
	canonical := Normalize(symbol)
	candidates := []string{canonical}
	candidates = append(candidates, canonicalToAliases[canonical]...)
	return candidates
}
