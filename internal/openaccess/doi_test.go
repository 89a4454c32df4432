package openaccess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDOI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare doi", "10.1126/science.169.3946.635", "10.1126/science.169.3946.635", true},
		{"doi.org url", "https://doi.org/10.1126/science.169.3946.635", "10.1126/science.169.3946.635", true},
		{"publisher url", "https://onlinelibrary.wiley.com/doi/full/10.1002/ajh.27000?af=R", "10.1002/ajh.27000", true},
		{"upper case", "DOI: 10.1371/JOURNAL.PONE.0001234", "10.1371/JOURNAL.PONE.0001234", true},
		{"first match wins", "10.1000/first and 10.1000/second", "10.1000/first", true},
		{"trailing full stop", "see 10.1234/example.doi.", "10.1234/example.doi", true},
		{"trailing comma", "cited as 10.1234/abc, 2020", "10.1234/abc", true},
		{"wrapped in parentheses", "(doi 10.1234/abc).", "10.1234/abc", true},
		{"balanced parentheses kept", "10.1002/(SICI)1097-4636", "10.1002/(SICI)1097-4636", true},
		{"registrant too short", "10.123/abc", "", false},
		{"no doi", "https://example.com/article/42", "", false},
		{"empty", "", "", false},
		{"prefix only", "10.1234/.", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractDOI(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
