package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	if NormalizeLimit(0) != DefaultLimit {
		t.Fatalf("expected default limit")
	}
	if NormalizeLimit(500) != MaxLimit {
		t.Fatalf("expected max limit")
	}
	if NormalizeLimit(7) != 7 {
		t.Fatalf("expected limit to pass through")
	}
	if LimitWithBuffer(7) != 8 {
		t.Fatalf("expected buffered limit")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 123, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", out, in)
	}
	if c, err := ParseCursor(""); err != nil || c != nil {
		t.Fatalf("empty cursor should be nil, got %+v err=%v", c, err)
	}
	if _, err := ParseCursor("not-base64!"); err == nil {
		t.Fatalf("expected error for malformed cursor")
	}
}

func TestTrim(t *testing.T) {
	rows := []int{1, 2, 3}
	cursorOf := func(v int) Cursor {
		return Cursor{CreatedAt: time.Unix(int64(v), 0).UTC()}
	}

	page, next := Trim(rows, 2, cursorOf)
	if len(page) != 2 || next == nil || next.CreatedAt.Unix() != 2 {
		t.Fatalf("unexpected page %v next %+v", page, next)
	}

	page, next = Trim(rows, 5, cursorOf)
	if len(page) != 3 || next != nil {
		t.Fatalf("expected full page without cursor, got %v %+v", page, next)
	}
}
