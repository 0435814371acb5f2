package math

import (
	"testing"
)

func TestVec3Add(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, 5, 6}
	got := a.Add(b)
	want := Vec3{5, 7, 9}
	if got != want {
		t.Errorf("Vec3.Add() = %v, want %v", got, want)
	}
}

func TestVec3Length(t *testing.T) {
	v := Vec3{2, 3, 6}
	got := v.Length()
	want := float32(7)
	if got != want {
		t.Errorf("Vec3.Length() = %v, want %v", got, want)
	}
}

func TestVec3Normalize(t *testing.T) {
	v := Vec3{3, 4, 12}
	n := v.Normalize()
	l := n.Length()
	if l < 0.999 || l > 1.001 {
		t.Errorf("Vec3.Normalize().Length() = %v, want ~1", l)
	}

	if z := (Vec3{}).Normalize(); z != (Vec3{}) {
		t.Errorf("zero Vec3.Normalize() = %v, want zero", z)
	}
}

func TestVec3Cross(t *testing.T) {
	x := Vec3{1, 0, 0}
	y := Vec3{0, 1, 0}
	got := x.Cross(y)
	want := Vec3{0, 0, 1}
	if got != want {
		t.Errorf("Vec3.Cross() = %v, want %v", got, want)
	}
}

func TestVec3MinMax(t *testing.T) {
	a := Vec3{1, 5, -2}
	b := Vec3{3, -1, 4}

	tests := []struct {
		name string
		got  Vec3
		want Vec3
	}{
		{"min", a.Min(b), Vec3{1, -1, -2}},
		{"max", a.Max(b), Vec3{3, 5, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}
