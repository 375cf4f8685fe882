package tracepoint

import (
	"errors"
	"strings"
	"testing"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want RGB
	}{
		{"int", 0xFF00FF, RGB{255, 0, 255}},
		{"uint32", uint32(0x123456), RGB{0x12, 0x34, 0x56}},
		{"zero", 0, RGB{}},
		{"name", "red", RGB{205, 0, 0}},
		{"symbol", ":light_blue", RGB{92, 92, 255}},
		{"dashed", "Light-Magenta", RGB{255, 0, 255}},
		{"ColorName", Cyan, RGB{0, 205, 205}},
		{"tuple", [3]int{1, 2, 3}, RGB{1, 2, 3}},
		{"bytes", [3]uint8{255, 255, 255}, RGB{255, 255, 255}},
		{"slice", []int{0, 128, 255}, RGB{0, 128, 255}},
		{"rgb", RGB{9, 8, 7}, RGB{9, 8, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if err != nil {
				t.Fatalf("ParseColor(%v): %v", tt.in, err)
			}

			if got != tt.want {
				t.Errorf("ParseColor(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseColor_Invalid(t *testing.T) {
	for _, in := range []any{
		[3]int{300, 0, 0},
		[3]int{0, -1, 0},
		[]int{1, 2},
		0x1000000,
		-1,
		"octarine",
		3.5,
		nil,
	} {
		if _, err := ParseColor(in); !errors.Is(err, ErrInvalidColor) {
			t.Errorf("ParseColor(%v): expected ErrInvalidColor, got %v", in, err)
		}
	}
}

func TestColorNames_Sixteen(t *testing.T) {
	n := 0
	for name, rgb := range ColorNames() {
		n++

		if got, ok := LookupColor(string(name)); !ok || got != rgb {
			t.Errorf("LookupColor(%q) = %v, %v", name, got, ok)
		}
	}

	if n != 16 {
		t.Errorf("expected 16 named colors, got %d", n)
	}
}

func TestRGB_String(t *testing.T) {
	if got := (RGB{255, 0, 255}).String(); got != "#ff00ff" {
		t.Errorf("expected #ff00ff, got %s", got)
	}
}

func TestRegistry_Message(t *testing.T) {
	r, rec := newTestRegistry(t)

	if err := r.Message("ok", WithColor(0xFF00FF)); err != nil {
		t.Fatal(err)
	}

	if err := r.Message("ok", WithColor(Red)); err != nil {
		t.Fatal(err)
	}

	if err := r.Message("plain"); err != nil {
		t.Fatal(err)
	}

	msgs := rec.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	if r, g, b := msgs[0].RGB(); !msgs[0].HasColor || r != 255 || g != 0 || b != 255 {
		t.Errorf("expected (255,0,255), got (%d,%d,%d)", r, g, b)
	}

	if r, g, b := msgs[1].RGB(); r != 205 || g != 0 || b != 0 {
		t.Errorf("expected red (205,0,0), got (%d,%d,%d)", r, g, b)
	}

	if msgs[2].HasColor {
		t.Error("expected no color when omitted")
	}
}

func TestRegistry_Message_Invalid(t *testing.T) {
	r, rec := newTestRegistry(t)

	tests := []struct {
		text string
		opts []MessageOption
		want error
	}{
		{"", nil, ErrInvalidMessage},
		{"ok", []MessageOption{WithCallstack(-1)}, ErrInvalidMessage},
		{"ok", []MessageOption{WithColor([3]int{300, 0, 0})}, ErrInvalidColor},
		{"ok", []MessageOption{WithColor("chartreuse")}, ErrInvalidColor},
	}

	for _, tt := range tests {
		if err := r.Message(tt.text, tt.opts...); !errors.Is(err, tt.want) {
			t.Errorf("Message(%q): expected %v, got %v", tt.text, tt.want, err)
		}
	}

	if n := len(rec.Messages()); n != 0 {
		t.Errorf("expected invalid messages to be dropped, got %d", n)
	}
}

func TestRegistry_Message_Callstack(t *testing.T) {
	r, rec := newTestRegistry(t)

	if err := r.Message("where am I", WithCallstack(2)); err != nil {
		t.Fatal(err)
	}

	msg := rec.Messages()[0]
	if len(msg.Stack) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(msg.Stack))
	}

	if !strings.HasSuffix(msg.Stack[0].Func, "TestRegistry_Message_Callstack") {
		t.Errorf("expected caller as first frame, got %s", msg.Stack[0].Func)
	}
}
