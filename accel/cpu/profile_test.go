package cpu

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestHostProfileValid(t *testing.T) {
	p := HostProfile()
	if err := p.Validate(); err != nil {
		t.Fatalf("Host profile does not validate: %v", err)
	}
	if p.MaxThreadsPerBlock != 1024 {
		t.Errorf("MaxThreadsPerBlock = %d, want 1024", p.MaxThreadsPerBlock)
	}
	if p.MaxGridDim != [3]int32{2147483647, 65535, 65535} {
		t.Errorf("MaxGridDim = %v", p.MaxGridDim)
	}
	if p.TotalGlobalMem == 0 {
		t.Error("TotalGlobalMem is zero")
	}
}

func TestPresets(t *testing.T) {
	names := Presets()
	if !sort.StringsAreSorted(names) {
		t.Errorf("Presets() not sorted: %v", names)
	}
	for _, want := range []string{"k40", "rtx4090", "v100"} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Preset %q missing from %v", want, names)
		}
	}

	for _, name := range names {
		p, err := ResolveProfile(name)
		if err != nil {
			t.Fatalf("ResolveProfile(%q) failed: %v", name, err)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("Preset %q does not validate: %v", name, err)
		}
	}
}

func TestPresetK40(t *testing.T) {
	p, err := ResolveProfile("k40")
	if err != nil {
		t.Fatalf("ResolveProfile failed: %v", err)
	}
	if p.Name != "Tesla K40" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.ComputeMajor != 3 || p.ComputeMinor != 5 {
		t.Errorf("Compute capability = %d.%d, want 3.5", p.ComputeMajor, p.ComputeMinor)
	}
	if p.TotalGlobalMem != 12*1024*1024*1024 {
		t.Errorf("TotalGlobalMem = %d", p.TotalGlobalMem)
	}
	if p.MultiprocessorCount != 15 || p.MaxThreadsPerMP != 2048 {
		t.Errorf("Occupancy shape = %d MPs x %d threads", p.MultiprocessorCount, p.MaxThreadsPerMP)
	}
	if p.MaxGridDim != [3]int32{2147483647, 65535, 65535} {
		t.Errorf("MaxGridDim = %v", p.MaxGridDim)
	}
}

func TestResolveProfileEmpty(t *testing.T) {
	p, err := ResolveProfile("")
	if err != nil {
		t.Fatalf("ResolveProfile(\"\") failed: %v", err)
	}
	if p.Name != HostProfile().Name {
		t.Errorf("Empty name resolved to %q, want the host profile", p.Name)
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yaml")
	doc := `name: Bench Box
compute_major: 5
compute_minor: 2
total_global_mem: 4294967296
max_threads_per_block: 512
max_grid_dim: [65535, 65535, 64]
warp_size: 32
multiprocessor_count: 8
max_threads_per_mp: 1024
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile failed: %v", err)
	}
	if p.Name != "Bench Box" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.MaxThreadsPerBlock != 512 {
		t.Errorf("MaxThreadsPerBlock = %d", p.MaxThreadsPerBlock)
	}
	if p.MaxGridDim != [3]int32{65535, 65535, 64} {
		t.Errorf("MaxGridDim = %v", p.MaxGridDim)
	}
	if p.HostMemLimit == 0 {
		t.Error("HostMemLimit fallback not applied")
	}
}

func TestLoadProfileErrors(t *testing.T) {
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadProfile on a missing file succeeded")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("name: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(bad); err == nil {
		t.Error("LoadProfile on malformed YAML succeeded")
	}

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("name: No Limits\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(invalid); err == nil {
		t.Error("LoadProfile accepted a profile that fails validation")
	}
}

func TestValidate(t *testing.T) {
	valid := testProfile()

	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"empty name", func(p *Profile) { p.Name = "" }},
		{"zero memory", func(p *Profile) { p.TotalGlobalMem = 0 }},
		{"zero block limit", func(p *Profile) { p.MaxThreadsPerBlock = 0 }},
		{"negative grid dim", func(p *Profile) { p.MaxGridDim[1] = -1 }},
		{"zero warp", func(p *Profile) { p.WarpSize = 0 }},
		{"zero multiprocessors", func(p *Profile) { p.MultiprocessorCount = 0 }},
		{"zero threads per mp", func(p *Profile) { p.MaxThreadsPerMP = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("Validate accepted a broken profile")
			}
		})
	}

	if err := valid.Validate(); err != nil {
		t.Errorf("Validate rejected a correct profile: %v", err)
	}
}
