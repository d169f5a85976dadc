package common

import (
	"reflect"
	"testing"
)

func TestRollingWindow(t *testing.T) {
	size := 5
	w := NewRollingWindow[int](size)

	for i := 0; i < 3; i++ {
		w.Push(i)
	}

	if l := w.Len(); l != 3 {
		t.Fatalf("Len should be 3, not %d", l)
	}

	if win := w.Window(); !reflect.DeepEqual(win, []int{0, 1, 2}) {
		t.Fatalf("Window should be [0 1 2], not %v", win)
	}

	for i := 3; i < 13; i++ {
		w.Push(i)
	}

	expected := []int{8, 9, 10, 11, 12}
	if win := w.Window(); !reflect.DeepEqual(win, expected) {
		t.Fatalf("Window should be %v, not %v", expected, win)
	}

	if l := w.Len(); l != size {
		t.Fatalf("Len should be %d, not %d", size, l)
	}
}

func TestRollingWindowRoll(t *testing.T) {
	w := NewRollingWindow[string](2)
	for _, s := range []string{"a", "b", "c", "d"} {
		w.Push(s)
	}
	if n := len(w.items); n != 4 {
		t.Fatalf("buffer should hold 4 items before rolling, not %d", n)
	}

	w.Push("e")
	if n := len(w.items); n != 3 {
		t.Fatalf("buffer should hold 3 items after rolling, not %d", n)
	}
	if win := w.Window(); !reflect.DeepEqual(win, []string{"d", "e"}) {
		t.Fatalf("Window should be [d e], not %v", win)
	}
}

func TestRollingWindowCopy(t *testing.T) {
	w := NewRollingWindow[int](3)
	w.Push(1)
	w.Push(2)

	win := w.Window()
	win[0] = 100

	if again := w.Window(); again[0] != 1 {
		t.Fatalf("Window should return a copy, got %v", again)
	}
}
