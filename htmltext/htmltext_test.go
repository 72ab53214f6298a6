package htmltext

import "testing"

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bold inside paragraph",
			in:   "<p>Hi <b>there</b></p>",
			want: "Hi **there**",
		},
		{
			name: "link text kept",
			in:   `<p>See <a href="https://example.com/report">the report</a>.</p>`,
			want: "See [the report](https://example.com/report).",
		},
		{
			name: "images dropped",
			in:   `<div>Logo: <img src="cid:logo" alt="logo"> done</div>`,
			want: "Logo: done",
		},
		{
			name: "image-only link dropped",
			in:   `<p>x<a href="https://tracker.example"><img src="pixel.gif"></a></p>`,
			want: "x",
		},
		{
			name: "paragraphs separated by blank line",
			in:   "<p>one</p><p>two</p>",
			want: "one\n\ntwo",
		},
		{
			name: "line breaks",
			in:   "first<br>second<br/>third",
			want: "first\nsecond\nthird",
		},
		{
			name: "head and style skipped",
			in:   "<html><head><title>t</title><style>p{}</style></head><body><p>body</p></body></html>",
			want: "body",
		},
		{
			name: "unordered list",
			in:   "<ul><li>a</li><li>b</li></ul>",
			want: "* a\n* b",
		},
		{
			name: "ordered list",
			in:   "<ol><li>a</li><li>b</li></ol>",
			want: "1. a\n2. b",
		},
		{
			name: "nested list indented",
			in:   "<ul><li>a<ul><li>b</li></ul></li></ul>",
			want: "* a\n  * b",
		},
		{
			name: "whitespace collapsed",
			in:   "<p>  lots   of\n\tspace  </p>",
			want: "lots of space",
		},
		{
			name: "heading",
			in:   "<h2>Title</h2><p>text</p>",
			want: "## Title\n\ntext",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Convert(tt.in); got != tt.want {
				t.Errorf("Convert(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
