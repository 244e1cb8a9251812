package keys

import "testing"

func TestParseLabel(t *testing.T) {
	cases := []struct {
		in string
		want Label
		ok bool
	}{
		{"//foo/bar:baz", Label{Package: "foo/bar", Name: "baz"}, true},
		{"//:root", Label{Package: "", Name: "root"}, true},
		{"foo/bar:baz", Label{}, false},
		{"//foo/bar", Label{}, false},
	}
	for _, c := range cases {
		got, err := ParseLabel(c.in)
		if c.ok && err != nil {
			t.Errorf("ParseLabel(%q) = %v, want nil error", c.in, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseLabel(%q) = nil error, want error", c.in)
		}
		if c.ok && got != c.want {
			t.Errorf("ParseLabel(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestLabel_String(t *testing.T) {
	l := Label{Package: "foo/bar", Name: "baz"}
	if got := l.String(); got != "//foo/bar:baz" {
		t.Errorf("String() = %q, want //foo/bar:baz", got)
	}
}

func TestLabel_RoundTrip(t *testing.T) {
	for _, s := range []string{"//foo/bar:baz", "//:root", "//a/b/c:d"} {
		l, err := ParseLabel(s)
		if err != nil {
			t.Fatalf("ParseLabel(%q): %v", s, err)
		}
		if got := l.String(); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}
