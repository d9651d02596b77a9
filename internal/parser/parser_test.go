package parser

import "testing"

//
// Detect
//

// TestDetect verifies extension-first detection with content sniffing as the
// fallback and CSV as the terminal default.
func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		head string
		want Format
	}{
		{"csv extension", "data.csv", "", FormatCSV},
		{"tsv extension", "data.tsv", "", FormatCSV},
		{"xlsx extension", "report.XLSX", "", FormatXLSX},
		{"json extension", "rows.json", "", FormatJSON},
		{"html extension", "page.html", "", FormatHTML},
		{"zip magic", "download", "PK\x03\x04rest", FormatXLSX},
		{"html sniff", "download", "<!doctype html><table>", FormatHTML},
		{"json object sniff", "download", `{"a":1}`, FormatJSON},
		{"json array sniff", "download", `[{"a":1}]`, FormatJSON},
		{"bom then brace", "download", "\xef\xbb\xbf{\"a\":1}", FormatJSON},
		{"leading whitespace", "download", "  \n<table>", FormatHTML},
		{"plain text falls back to csv", "download", "a,b\n1,2\n", FormatCSV},
		{"empty head falls back to csv", "download", "", FormatCSV},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Detect(tt.file, []byte(tt.head)); got != tt.want {
				t.Fatalf("Detect(%q, %q) = %v, want %v", tt.file, tt.head, got, tt.want)
			}
		})
	}
}

//
// ParseFormat
//

// TestParseFormat verifies explicit format names: empty means detect, typos
// are rejected.
func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    Format
		wantErr bool
	}{
		{"empty means detect", "", FormatUnknown, false},
		{"csv", "csv", FormatCSV, false},
		{"tsv maps to csv", "tsv", FormatCSV, false},
		{"upper case", "XLSX", FormatXLSX, false},
		{"json", "json", FormatJSON, false},
		{"htm", "htm", FormatHTML, false},
		{"typo rejected", "xslx", FormatUnknown, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
