package types

import (
	"strings"
	"testing"
	"time"

	kerrors "github.com/kotadb/kotadb/pkg/errors"
)

func TestNewPath_NormalizesAndValidates(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"notes/a.md", "/notes/a.md", false},
		{"/notes/a.md", "/notes/a.md", false},
		{"notes\\a.md", "/notes/a.md", false},
		{"", "", true},
		{"notes/../a.md", "", true},
		{"notes/./a.md", "", true},
		{"notes/con/a.md", "", true},
		{"notes/CON/a.md", "", true},
		{"/a//b", "", true},
		{"//notes/a.md", "", true},
		{"/notes/a.md/", "/notes/a.md", false},
		{strings.Repeat("a", maxPathBytes+1), "", true},
	}

	for _, tc := range cases {
		p, err := NewPath(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NewPath(%q): expected error, got none", tc.raw)
			} else if !kerrors.Is(err, kerrors.InvalidInput) {
				t.Errorf("NewPath(%q): expected InvalidInput, got %v", tc.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NewPath(%q): unexpected error %v", tc.raw, err)
			continue
		}
		if p.String() != tc.want {
			t.Errorf("NewPath(%q) = %q, want %q", tc.raw, p.String(), tc.want)
		}
	}
}

func TestNewPath_RejectsNullByte(t *testing.T) {
	if _, err := NewPath("a\x00b"); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput for null byte, got %v", err)
	}
}

func TestPath_Compare(t *testing.T) {
	a, _ := NewPath("/a")
	b, _ := NewPath("/b")
	if a.Compare(b) != -1 {
		t.Fatalf("expected /a < /b")
	}
	if b.Compare(a) != 1 {
		t.Fatalf("expected /b > /a")
	}
	if a.Compare(a) != 0 {
		t.Fatalf("expected /a == /a")
	}
}

func TestPath_HasPrefix(t *testing.T) {
	root, _ := NewPath("/notes")
	child, _ := NewPath("/notes/a.md")
	if !child.HasPrefix(root) {
		t.Fatalf("expected %q to have prefix %q", child, root)
	}
}

func TestNewDocumentId_RejectsAllZero(t *testing.T) {
	if _, err := DocumentIdFromBytes([16]byte{}); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput for all-zero id, got %v", err)
	}
}

func TestDocumentId_RoundTripsThroughString(t *testing.T) {
	id, err := NewDocumentId()
	if err != nil {
		t.Fatalf("NewDocumentId: %v", err)
	}
	s := id.String()
	if strings.Count(s, "-") != 4 {
		t.Fatalf("expected canonical 8-4-4-4-12 form, got %q", s)
	}
	parsed, err := ParseDocumentId(s)
	if err != nil {
		t.Fatalf("ParseDocumentId(%q): %v", s, err)
	}
	if parsed.Bytes() != id.Bytes() {
		t.Fatalf("round trip mismatch: %v != %v", parsed, id)
	}
}

func TestParseDocumentId_RejectsMalformed(t *testing.T) {
	if _, err := ParseDocumentId("not-hex-at-all"); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput for malformed id")
	}
}

func TestNewTitle_TrimsAndValidates(t *testing.T) {
	title, err := NewTitle("  hello  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title.String() != "hello" {
		t.Fatalf("expected trimmed title, got %q", title)
	}

	if _, err := NewTitle("   "); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput for blank title")
	}
	if _, err := NewTitle(strings.Repeat("x", maxTitleBytes+1)); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput for oversized title")
	}
}

func TestNewTag_Validates(t *testing.T) {
	if _, err := NewTag("go_lang-2024"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewTag(""); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput for empty tag")
	}
	if _, err := NewTag("has space"); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput for tag with a space")
	}
	if _, err := NewTag(strings.Repeat("a", maxTagLen+1)); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput for oversized tag")
	}
}

func TestNewTimestamp_BoundsCheck(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := NewTimestamp(epoch2000.Unix()-1, now); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput before 2000-01-01")
	}
	if _, err := NewTimestamp(now.Add(48*time.Hour).Unix(), now); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput more than a day in the future")
	}

	ts, err := NewTimestamp(now.Unix(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.Unix() != now.Unix() {
		t.Fatalf("expected %d, got %d", now.Unix(), ts.Unix())
	}
}

func TestNewNonZeroSize_RejectsNonPositive(t *testing.T) {
	if _, err := NewNonZeroSize(0); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput for zero size")
	}
	if _, err := NewNonZeroSize(-1); !kerrors.Is(err, kerrors.InvalidInput) {
		t.Fatalf("expected InvalidInput for negative size")
	}
	size, err := NewNonZeroSize(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size.Int64() != 42 {
		t.Fatalf("expected 42, got %d", size.Int64())
	}
}
