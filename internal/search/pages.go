package search

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// maxRangePages caps how many pages a single range reference expands to.
const maxRangePages = 1000

var (
	pageRangePattern  = regexp.MustCompile(`(?i)\bpages?\s+(\d+)\s*(?:to|through|[-\x{2013}\x{2014}])\s*(\d+)\b`)
	pageListPattern   = regexp.MustCompile(`(?i)\bpages?\s+(\d+(?:\s*,\s*\d+)+)\b`)
	pageSinglePattern = regexp.MustCompile(`(?i)\bpages?\s*#?\s*(\d+)\b`)
	pageAbbrevPattern = regexp.MustCompile(`(?i)\bpg\.?\s*(\d+)\b`)
	pagePrepPattern   = regexp.MustCompile(`(?i)\b(?:on|in|at|from)\s+page\s*(\d+)\b`)
)

var listSeparator = regexp.MustCompile(`\s*,\s*`)

// ExtractPages returns the sorted, de-duplicated page numbers referenced in
// query ("page 5", "pg.3", "pages 2, 4, 7", "pages 3 to 5", "on page 5").
// Numbers that do not parse or are below 1 are ignored; a reversed range
// contributes nothing.
func ExtractPages(query string) []int {
	pages, _ := ParsePageReference(query)
	return pages
}

// ParsePageReference is ExtractPages that also reports whether any page
// pattern matched. referenced is true for "page 0" or an overflowing number
// even though no valid page survives.
func ParsePageReference(query string) (pages []int, referenced bool) {
	set := make(map[int]struct{})
	add := func(raw string) {
		referenced = true
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 1 {
			return
		}
		set[n] = struct{}{}
	}

	for _, m := range pageRangePattern.FindAllStringSubmatch(query, -1) {
		referenced = true
		lo, errLo := strconv.Atoi(m[1])
		hi, errHi := strconv.Atoi(m[2])
		if errLo != nil || errHi != nil || lo > hi {
			continue
		}
		lo = max(lo, 1)
		hi = min(hi, lo+maxRangePages-1)
		for p := lo; p <= hi; p++ {
			set[p] = struct{}{}
		}
	}

	for _, m := range pageListPattern.FindAllStringSubmatch(query, -1) {
		for _, part := range listSeparator.Split(m[1], -1) {
			add(part)
		}
	}

	for _, re := range []*regexp.Regexp{pageSinglePattern, pageAbbrevPattern, pagePrepPattern} {
		for _, m := range re.FindAllStringSubmatch(query, -1) {
			add(m[1])
		}
	}

	if len(set) == 0 {
		return nil, referenced
	}
	pages = make([]int, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	slices.Sort(pages)
	return pages, referenced
}
