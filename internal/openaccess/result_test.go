package openaccess

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Result
	}{
		{
			name: "gold with best location",
			raw: `{"doi":"10.1/a","is_oa":true,"oa_status":"gold",
				"best_oa_location":{"url":"https://x/a","url_for_pdf":"https://x/a.pdf","license":"cc-by"},
				"title":"A","year":2021,"journal_name":"J"}`,
			want: Result{
				DOI: strPtr("10.1/a"), IsOA: true, OAStatus: strPtr("gold"),
				OpenURL: strPtr("https://x/a"), OpenPDFURL: strPtr("https://x/a.pdf"), License: strPtr("cc-by"),
				Title: strPtr("A"), Year: intPtr(2021), Journal: strPtr("J"), Source: "unpaywall",
			},
		},
		{
			name: "closed without location",
			raw:  `{"doi":"10.1/b","is_oa":false,"oa_status":"closed","best_oa_location":null,"title":"B"}`,
			want: Result{DOI: strPtr("10.1/b"), OAStatus: strPtr("closed"), Title: strPtr("B"), Source: "unpaywall"},
		},
		{
			name: "truthy non-boolean is_oa is false",
			raw:  `{"doi":"10.1/c","is_oa":"true"}`,
			want: Result{DOI: strPtr("10.1/c"), Source: "unpaywall"},
		},
		{
			name: "numeric is_oa is false",
			raw:  `{"doi":"10.1/d","is_oa":1}`,
			want: Result{DOI: strPtr("10.1/d"), Source: "unpaywall"},
		},
		{
			name: "fallback field names",
			raw:  `{"doi":"10.1/e","is_oa":false,"published_year":1970,"journal":"Science","journal_name":""}`,
			want: Result{DOI: strPtr("10.1/e"), Year: intPtr(1970), Journal: strPtr("Science"), Source: "unpaywall"},
		},
		{
			name: "year preferred over published_year",
			raw:  `{"is_oa":false,"year":2001,"published_year":2000}`,
			want: Result{Year: intPtr(2001), Source: "unpaywall"},
		},
		{
			name: "empty strings become null",
			raw:  `{"doi":"","is_oa":true,"oa_status":"","best_oa_location":{"url":"","url_for_pdf":null},"title":""}`,
			want: Result{IsOA: true, Source: "unpaywall"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec Record
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &rec))

			got := Normalize(&rec)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResult_JSONNulls(t *testing.T) {
	out, err := json.Marshal(Result{Source: SourceUnpaywall})
	require.NoError(t, err)
	require.JSONEq(t, `{"doi":null,"is_oa":false,"oa_status":null,"open_url":null,"open_pdf_url":null,
		"license":null,"title":null,"year":null,"journal":null,"source":"unpaywall"}`, string(out))
}
