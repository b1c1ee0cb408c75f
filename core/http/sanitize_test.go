package http

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/index.html", "index.html"},
		{"../../etc/passwd", "etc/passwd"},
		{"./a/./b", "a/./b"},
		{"/.hidden", "hidden"},
		{"//..//x", "x"},
		{"clean/path", "clean/path"},
		{"a/../b", "a/../b"},
		{"/", "/"},
		{"./..", "./.."},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	for _, p := range []string{"/a", "../b/c", "....//d", "e", "/", "./", "/x/../y"} {
		once := Sanitize(p)
		if twice := Sanitize(once); twice != once {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", p, once, twice)
		}
	}
}
