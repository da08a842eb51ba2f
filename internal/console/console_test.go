package console

import "testing"

func TestNewIsCleared(t *testing.T) {
	c := New()
	x, y := c.Cursor()
	if x != 0 || y != 0 {
		t.Errorf("Cursor() = (%d,%d), want (0,0)", x, y)
	}
	if c.Line(0) != "" {
		t.Errorf("Line(0) = %q, want empty", c.Line(0))
	}
}

func TestPutAdvancesCursorAndWritesCell(t *testing.T) {
	c := New()
	c.WriteString("hi")
	x, y := c.Cursor()
	if x != 2 || y != 0 {
		t.Errorf("Cursor() = (%d,%d), want (2,0)", x, y)
	}
	if c.Line(0) != "hi" {
		t.Errorf("Line(0) = %q, want \"hi\"", c.Line(0))
	}
}

func TestNewlineMovesToNextLine(t *testing.T) {
	c := New()
	c.WriteString("a\nb")
	if c.Line(0) != "a" || c.Line(1) != "b" {
		t.Errorf("Line(0)=%q Line(1)=%q, want \"a\" \"b\"", c.Line(0), c.Line(1))
	}
}

func TestBackspaceMovesCursorLeft(t *testing.T) {
	c := New()
	c.WriteString("ab\b")
	x, _ := c.Cursor()
	if x != 1 {
		t.Errorf("Cursor x = %d, want 1", x)
	}
}

func TestScrollOnOverflow(t *testing.T) {
	c := New()
	for i := 0; i < Height+1; i++ {
		c.WriteString("x\n")
	}
	_, y := c.Cursor()
	if y != Height-1 {
		t.Errorf("cursorY = %d, want pinned at %d after scrolling", y, Height-1)
	}
}

func TestClearResetsGridAndCursor(t *testing.T) {
	c := New()
	c.WriteString("hello")
	c.Clear()
	x, y := c.Cursor()
	if x != 0 || y != 0 || c.Line(0) != "" {
		t.Errorf("Clear() left (%d,%d) %q, want (0,0) \"\"", x, y, c.Line(0))
	}
}

func TestContainsFindsSubstringAcrossLines(t *testing.T) {
	c := New()
	c.WriteString("thread-1\nthread-2")
	if !c.Contains("thread-2") {
		t.Error("Contains(\"thread-2\") = false, want true")
	}
	if c.Contains("thread-9") {
		t.Error("Contains(\"thread-9\") = true, want false")
	}
}
