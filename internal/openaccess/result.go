package openaccess

import "bytes"

const SourceUnpaywall = "unpaywall"

// Result is the stable open-access answer handed to callers.
type Result struct {
	DOI        *string `json:"doi"`
	IsOA       bool    `json:"is_oa"`
	OAStatus   *string `json:"oa_status"`
	OpenURL    *string `json:"open_url"`
	OpenPDFURL *string `json:"open_pdf_url"`
	License    *string `json:"license"`
	Title      *string `json:"title"`
	Year       *int    `json:"year"`
	Journal    *string `json:"journal"`
	Source     string  `json:"source"`
}

// Normalize maps an Unpaywall record to a Result. Empty strings and zero
// years become null, and the first non-null alternate field wins.
func Normalize(rec *Record) Result {
	res := Result{
		DOI:      nonEmpty(rec.DOI),
		IsOA:     bytes.Equal(bytes.TrimSpace(rec.IsOA), []byte("true")),
		OAStatus: nonEmpty(rec.OAStatus),
		Title:    nonEmpty(rec.Title),
		Year:     firstYear(rec.Year, rec.PublishedYear),
		Journal:  firstString(rec.JournalName, rec.Journal),
		Source:   SourceUnpaywall,
	}
	if loc := rec.BestOALocation; loc != nil {
		res.OpenURL = nonEmpty(loc.URL)
		res.OpenPDFURL = nonEmpty(loc.URLForPDF)
		res.License = nonEmpty(loc.License)
	}
	return res
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func firstString(values ...*string) *string {
	for _, v := range values {
		if v := nonEmpty(v); v != nil {
			return v
		}
	}
	return nil
}

func firstYear(values ...*int) *int {
	for _, v := range values {
		if v != nil && *v != 0 {
			return v
		}
	}
	return nil
}
