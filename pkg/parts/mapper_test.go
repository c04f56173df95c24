package parts

import (
	"slices"
	"testing"
)

const testBase = "https://cdn.example.com/ldraw/"

func TestMap(t *testing.T) {
	m := NewMapper(testBase)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"ldconfig", "ldconfig.ldr", testBase + "LDConfig.ldr"},
		{"ldconfig mixed case", "LDConfig.ldr", testBase + "LDConfig.ldr"},
		{"model passthrough", "car.ldr", "car.ldr"},
		{"model url passthrough", "https://x.test/m/Car.LDR", "https://x.test/m/Car.LDR"},
		{"mpd passthrough", "set.mpd", "set.mpd"},
		{"subpart", "3001s01.dat", testBase + "parts/s/3001s01.dat"},
		{"subpart with suffix", "s/3005s01a.dat", testBase + "parts/s/3005s01a.dat"},
		{"fraction primitive", "4-4cyli.dat", testBase + "p/4-4cyli.dat"},
		{"hi-res primitive path", `48\1-4edge.dat`, testBase + "p/1-4edge.dat"},
		{"stud primitive", "stud.dat", testBase + "p/stud.dat"},
		{"stud upper case", "STUD4.DAT", testBase + "p/stud4.dat"},
		{"box primitive", "box5.dat", testBase + "p/box5.dat"},
		{"ring primitive", "ring3.dat", testBase + "p/ring3.dat"},
		{"plain part", "3001.dat", testBase + "parts/3001.dat"},
		{"part with letters", "3626bp01.dat", testBase + "parts/3626bp01.dat"},
		{"query stripped", "3001.dat?v=2", testBase + "parts/3001.dat"},
		{"fragment stripped", "stud.dat#x", testBase + "p/stud.dat"},
		{"full url to part", "https://other.test/lib/parts/3001.dat", testBase + "parts/3001.dat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Map(tt.raw); got != tt.want {
				t.Errorf("Map(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMap_NonNetworkBase(t *testing.T) {
	for _, base := range []string{"", "/usr/share/ldraw/", "assets/ldraw/"} {
		m := NewMapper(base)
		for _, raw := range []string{"3001.dat", "stud.dat", "ldconfig.ldr"} {
			if got := m.Map(raw); got != raw {
				t.Errorf("base %q: Map(%q) = %q, want unchanged", base, raw, got)
			}
		}
	}
}

func TestNewMapper_AddsSlash(t *testing.T) {
	m := NewMapper("http://mirror.local/ldraw")
	if got := m.Map("3001.dat"); got != "http://mirror.local/ldraw/parts/3001.dat" {
		t.Errorf("Map() = %q", got)
	}
}

func TestCandidates(t *testing.T) {
	m := NewMapper(testBase)

	got := m.Candidates("4-4cyli.dat")
	want := []string{
		testBase + "p/4-4cyli.dat",
		testBase + "parts/4-4cyli.dat",
		testBase + "p/48/4-4cyli.dat",
		testBase + "p/8/4-4cyli.dat",
		testBase + "parts/s/4-4cyli.dat",
		testBase + "models/4-4cyli.dat",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Candidates() = %v\nwant %v", got, want)
	}

	if got := m.Candidates("car.ldr"); !slices.Equal(got, []string{"car.ldr", testBase + "models/car.ldr"}) {
		t.Errorf("Candidates(ldr) = %v", got)
	}
	if got := m.Candidates("ldconfig.ldr"); !slices.Equal(got, []string{testBase + "LDConfig.ldr"}) {
		t.Errorf("Candidates(ldconfig) = %v", got)
	}
	if got := NewMapper("/lib/ldraw").Candidates("ldconfig.ldr"); !slices.Equal(got, []string{"ldconfig.ldr", "/lib/ldraw/LDConfig.ldr"}) {
		t.Errorf("Candidates(ldconfig, local) = %v", got)
	}
	if got := NewMapper("").Candidates("3001.dat"); !slices.Equal(got, []string{"3001.dat"}) {
		t.Errorf("Candidates without base = %v", got)
	}
}

func TestCandidates_LocalBase(t *testing.T) {
	m := NewMapper("/lib/ldraw")
	got := m.Candidates("3001.dat")
	if got[0] != "3001.dat" {
		t.Errorf("first candidate should be the unmapped name, got %q", got[0])
	}
	if !slices.Contains(got, "/lib/ldraw/parts/3001.dat") {
		t.Errorf("expected library folder candidate, got %v", got)
	}
}

func BenchmarkMap(b *testing.B) {
	m := NewMapper(testBase)
	names := []string{"3001.dat", "stud.dat", "3001s01.dat", "4-4cyli.dat", "car.ldr"}

	for b.Loop() {
		for _, n := range names {
			_ = m.Map(n)
		}
	}
}
