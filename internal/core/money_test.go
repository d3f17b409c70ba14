package core

import (
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1, true},
		{"3000", 3000, true},
		{"1.5", 1.5, true},
		{"1,5", 1.5, true},
		{" 60 ", 60, true},
		{"0", 0, true},
		{"-1", -1, true},
		{"+2", 2, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1e3", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"0x10", 0, false},
		{"", 0, false},
		{"-", 0, false},
	}
	for _, tc := range cases {
		got := ParseAmount(tc.in)
		if tc.ok {
			if got != tc.out {
				t.Fatalf("%q expected %v, got %v", tc.in, tc.out, got)
			}
		} else if !math.IsNaN(got) {
			t.Fatalf("%q expected NaN, got %v", tc.in, got)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[float64]string{
		0:    "0",
		60:   "60",
		12.5: "12.5",
		3000: "3000",
	}
	for in, want := range cases {
		if got := FormatAmount(in); got != want {
			t.Fatalf("FormatAmount(%v) = %q, want %q", in, got, want)
		}
	}
	if got := FormatAmount(math.NaN()); got != "" {
		t.Fatalf("FormatAmount(NaN) = %q, want empty", got)
	}
}

func TestAggregate(t *testing.T) {
	rows := []Row{
		{ID: 1, Price: 50, Cost: 10},
		{ID: 2, Price: 30, Cost: 5},
		{ID: 3, Price: 0, Cost: 0},
	}
	got := Aggregate(rows)
	if got.Total != 80 || got.TotalCost != 15 {
		t.Fatalf("Aggregate = %+v", got)
	}
	if z := Aggregate(nil); z != (Totals{}) {
		t.Fatalf("empty aggregate = %+v", z)
	}
	v := NewView(rows)
	if v.Totals != got || len(v.Rows) != 3 {
		t.Fatalf("NewView = %+v", v)
	}
}
