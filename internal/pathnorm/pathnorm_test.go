package pathnorm

import "testing"

func TestNormalizeDevicePath(t *testing.T) {
	cases := []struct {
		name        string
		group, edge string
		extra       []string
		want        string
		wantErr     bool
	}{
		{name: "simple", group: "G", edge: "E", want: "G/E"},
		{name: "whitespace collapse", group: "  G  1", edge: "E", want: "G 1/E"},
		{name: "invalid chars replaced", group: "G!!", edge: "E?", want: "G_/E_"},
		{name: "empty group", group: "", edge: "E", wantErr: true},
		{name: "empty edge", group: "G", edge: "", wantErr: true},
		{name: "extras appended", group: "G", edge: "E", extra: []string{"D"}, want: "G/E/D"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeDevicePath(tc.group, tc.edge, tc.extra...)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeMetricPath(t *testing.T) {
	got, err := NormalizeMetricPath("G", "E", "D", "kiln.temp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "G/E/D/kiln.temp"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got, err = NormalizeMetricPath("G", "E", "D", "a/b/c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "G/E/D/a/b/c"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got, err = NormalizeMetricPath("G", "E", "", "node_temp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "G/E/node_temp"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEncodeTagIDRoundTrip(t *testing.T) {
	n := NewNormalizer()
	path, err := NormalizeMetricPath("G", "E", "D", "kiln.temp")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	tag, err := n.EncodeTagID(path, false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if want := "G.E.D.kiln.temp"; tag != want {
		t.Fatalf("got %q, want %q", tag, want)
	}
}

func TestEncodeTagIDWithChecksum(t *testing.T) {
	n := NewNormalizer()
	tag, err := n.EncodeTagID("G/E/D/x", true)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// tag.checksum: exactly one more dot-joined 8-hex segment
	if len(tag) < 9 || tag[len(tag)-9] != '.' {
		t.Fatalf("expected trailing .checksum, got %q", tag)
	}
}

func TestEncodeTagIDEscaping(t *testing.T) {
	n := NewNormalizer()
	tag, err := n.EncodeTagID("G/E/foo\tbar", false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if want := "G.E.foo bar"; tag != want {
		t.Fatalf("got %q, want %q", tag, want)
	}
}

func TestEncodeTagIDErrors(t *testing.T) {
	n := NewNormalizer()
	if _, err := n.EncodeTagID("", false); err != ErrInvalidTag {
		t.Fatalf("expected ErrInvalidTag, got %v", err)
	}
	if _, err := n.EncodeTagID("G//D", false); err != ErrInvalidSegment {
		t.Fatalf("expected ErrInvalidSegment, got %v", err)
	}
}

func TestCollisionCounting(t *testing.T) {
	n := NewNormalizer()
	if _, err := n.EncodeTagID("G/E/D", false); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := n.EncodeTagID("G/E/D", false); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if n.Collisions() != 0 {
		t.Fatalf("same source path should not count as a collision, got %d", n.Collisions())
	}
}
