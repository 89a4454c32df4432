// Package openaccess finds open-access copies of scholarly works through
// the Unpaywall API.
package openaccess

import (
	"regexp"
	"strings"
)

var doiPattern = regexp.MustCompile(`(?i)10\.\d{4,9}/[-._;()/:A-Z0-9]+`)

// ExtractDOI returns the first DOI-shaped substring of input. Trailing
// sentence punctuation and an unbalanced closing parenthesis are not part
// of the DOI.
func ExtractDOI(input string) (string, bool) {
	doi := doiPattern.FindString(input)
	if doi == "" {
		return "", false
	}
	for {
		trimmed := strings.TrimRight(doi, ".,;:")
		if strings.HasSuffix(trimmed, ")") && strings.Count(trimmed, "(") < strings.Count(trimmed, ")") {
			trimmed = trimmed[:len(trimmed)-1]
		}
		if trimmed == doi {
			break
		}
		doi = trimmed
	}
	// "10.1234/" followed only by punctuation
	if strings.HasSuffix(doi, "/") {
		return "", false
	}
	return doi, true
}
