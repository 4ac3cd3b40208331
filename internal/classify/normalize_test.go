package classify

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"STARBUCKS GANGNAM", "starbucks gangnam"},
		{"  KB CARD PAYMENT  ", "kb card payment"},
		{"GS25*역삼점", "gs25역삼점"},
		{"Pay-Pal *NETFLIX.COM", "paypal netflixcom"},
		{"a   b\t\nc", "a b c"},
		{"...", ""},
		{"", ""},
		{"스타벅스 강남점", "스타벅스 강남점"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
