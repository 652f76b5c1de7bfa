package htmlutils

import "testing"

func TestStripTags(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text",
			input: "just text",
			want:  "just text",
		},
		{
			name:  "simple tags",
			input: "<b>Breaking</b>: a <i>story</i>",
			want:  "Breaking: a story",
		},
		{
			name:  "paragraphs become spaces",
			input: "<p>one</p><p>two</p>",
			want:  " one  two ",
		},
		{
			name:  "entities decoded",
			input: "Smith &amp; Jones",
			want:  "Smith & Jones",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTags(tt.input); got != tt.want {
				t.Errorf("StripTags(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanFragment(t *testing.T) {
	got := CleanFragment("<p>  The   quick \n brown</p> fox", 0)
	if got != "The quick brown fox" {
		t.Errorf("CleanFragment = %q", got)
	}
}

func TestCleanFragmentTruncates(t *testing.T) {
	got := CleanFragment("abcdefghij", 4)
	if got != "abcd" {
		t.Errorf("CleanFragment = %q, want abcd", got)
	}
}
