package normalization

import (
	"testing"
)

func TestNormalizeContent(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "bom", in: "\ufeff\ufeff第一章", want: "第一章"},
		{name: "crlf", in: "a\r\nb\rc", want: "a\nb\nc"},
		{name: "trailing", in: "正文  \n\n\t ", want: "正文"},
		{name: "leading whitespace kept", in: "  起", want: "  起"},
		{name: "interior kept", in: "a  \n  b", want: "a  \n  b"},
		{name: "interior bom kept", in: "a\ufeffb", want: "a\ufeffb"},
		{name: "whitespace only", in: " \r\n\t", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeContent(tc.in); got != tc.want {
				t.Fatalf("want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestNormalizeContentIdempotent(t *testing.T) {
	inputs := []string{
		"\ufeff第一章\r\n他推门而入。\r\n\r\n",
		"plain",
		"\r\r\n\n  ",
		"  mixed\rline\r\nendings \t",
	}
	for _, in := range inputs {
		once := NormalizeContent(in)
		if twice := NormalizeContent(once); twice != once {
			t.Fatalf("not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestNormalizeContentPtr(t *testing.T) {
	if NormalizeContentPtr(nil) != nil {
		t.Fatalf("nil input should stay nil")
	}
	s := "x\r\n"
	got := NormalizeContentPtr(&s)
	if got == nil || *got != "x" {
		t.Fatalf("want=%q got=%v", "x", got)
	}
}

func TestContentHash(t *testing.T) {
	const emptySHA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := ContentHash(""); got != emptySHA {
		t.Fatalf("want=%s got=%s", emptySHA, got)
	}
	if got := ContentHash(" \r\n"); got != emptySHA {
		t.Fatalf("whitespace-only text should hash as empty, got=%s", got)
	}

	a := ContentHash("他走进客栈。\r\n")
	b := ContentHash("\ufeff他走进客栈。\n\n")
	if a != b {
		t.Fatalf("equivalent texts hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("want 64 hex chars, got %d", len(a))
	}
	if c := ContentHash("他走进客栈!"); c == a {
		t.Fatalf("distinct texts collided")
	}
}

func TestIsBlank(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"\ufeff \r\n", true},
		{" \n\ufeff ", true},
		{"\ufeff\ufeff\t", true},
		{"字", false},
		{" \ufeff字\n", false},
	}
	for _, tc := range cases {
		if got := IsBlank(tc.in); got != tc.want {
			t.Errorf("IsBlank(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestIsBlankKeepsHashOfInteriorMark(t *testing.T) {
	if ContentHash("a\ufeffb") == ContentHash("ab") {
		t.Fatalf("interior byte order mark must stay part of the hashed content")
	}
}
