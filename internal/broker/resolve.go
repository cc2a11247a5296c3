package broker

import "strings"

// SymbolLookup is the narrow capability ResolveSymbol needs from a
// transport: look up one candidate name, and list every symbol the
// terminal knows about for the fallback scan. Kept separate from Transport
// so resolution logic is unit-testable without a fake RPC round trip.
type SymbolLookup interface {
	LookupSymbol(name string) (SymbolInfo, bool)
	AllSymbols() ([]SymbolInfo, error)
}

// maxSubstringMatchLen bounds the substring-scan fallback to short symbol
// names ("preferring ≤10-character names").
const maxSubstringMatchLen = 10

// commonSymbolVariants is the fixed list of suffix/prefix spellings brokers
// commonly use for the same underlying instrument, tried after the
// configured envelope and before the open-ended scans. Order matches
// original_source/Easy_Trading.py's _find_symbol_info.
var commonSymbolVariants = []func(string) string{
	func(s string) string { return s },
	func(s string) string { return s + "m" },
	func(s string) string { return s + ".c" },
	func(s string) string { return s + "." },
	func(s string) string { return s + "#" },
	func(s string) string { return "#" + s },
	func(s string) string { return s + "_" },
	func(s string) string { return s + "pro" },
	func(s string) string { return s + "pro-cent" },
	func(s string) string { return s + "cent" },
	func(s string) string { return s + "fix" },
	func(s string) string { return s + "ex" },
	func(s string) string { return strings.ToLower(s) },
	func(s string) string { return strings.ToUpper(s) },
	func(s string) string { return s + "c" },
	func(s string) string { return s + "ecn" },
	func(s string) string { return "." + s },
}

// ResolveSymbolName implements the ordered search:
//
//  1. the configured broker-specific prefix/suffix envelope
//  2. the fixed list of common suffix/prefix variants
//  3. a case-insensitive exact scan across all symbols
//  4. a substring scan preferring short (<=10 char) symbol names
//
// It returns ErrSymbolNotFound if nothing matches. Nothing here is cached
// across calls, so a reconnect never leaves stale symbol state behind.
func ResolveSymbolName(lookup SymbolLookup, requested, prefix, suffix string) (SymbolInfo, error) {
	for _, candidate := range envelopeCandidates(requested, prefix, suffix) {
		if info, ok := lookup.LookupSymbol(candidate); ok {
			return info, nil
		}
	}

	for _, variant := range commonSymbolVariants {
		candidate := variant(requested)
		if info, ok := lookup.LookupSymbol(candidate); ok {
			return info, nil
		}
	}

	all, err := lookup.AllSymbols()
	if err != nil || len(all) == 0 {
		return SymbolInfo{}, ErrSymbolNotFound
	}

	upper := strings.ToUpper(requested)
	for _, info := range all {
		if strings.ToUpper(info.Name) == upper {
			return info, nil
		}
	}

	for _, info := range all {
		if strings.Contains(strings.ToUpper(info.Name), upper) && len(info.Name) <= maxSubstringMatchLen {
			return info, nil
		}
	}

	return SymbolInfo{}, ErrSymbolNotFound
}

// envelopeCandidates builds the broker-specific prefix/suffix candidates,
// preserving insertion order and skipping duplicates, matching
// original_source/Easy_Trading.py's custom_candidates set.
func envelopeCandidates(requested, prefix, suffix string) []string {
	if prefix == "" && suffix == "" {
		return nil
	}

	ordered := []string{
		prefix + requested + suffix,
		requested + suffix,
		prefix + requested,
	}

	seen := make(map[string]bool, len(ordered))
	out := make([]string, 0, len(ordered))
	for _, c := range ordered {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
