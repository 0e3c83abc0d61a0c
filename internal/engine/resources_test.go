package engine

import "testing"

func TestParseMemoryLimit(t *testing.T) {
	cases := map[string]int64{
		"512m": 512 * 1024 * 1024,
		"1g":   1024 * 1024 * 1024,
		"512k": 512 * 1024,
		"1024": 1024,
	}
	for in, want := range cases {
		got, err := parseMemoryLimit(in)
		if err != nil {
			t.Fatalf("parseMemoryLimit(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("parseMemoryLimit(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseMemoryLimitInvalid(t *testing.T) {
	if _, err := parseMemoryLimit("not-a-number"); err == nil {
		t.Fatal("expected error for invalid memory string")
	}
	if _, err := parseMemoryLimit(""); err == nil {
		t.Fatal("expected error for empty memory string")
	}
}

func TestCPULimitToQuota(t *testing.T) {
	period, quota := cpuLimitToQuota(0.5)
	if period != 100_000 {
		t.Errorf("period = %d, want 100000", period)
	}
	if quota != 50_000 {
		t.Errorf("quota = %d, want 50000", quota)
	}
}

func TestDependencyChecksumStableAndOrderInsensitive(t *testing.T) {
	a := dependencyChecksum([]string{"requests", "flask"})
	b := dependencyChecksum([]string{"flask", "requests"})
	if a != b {
		t.Errorf("checksum should be order-insensitive: %q != %q", a, b)
	}
	if dependencyChecksum(nil) != "" {
		t.Error("empty dependency list should checksum to empty string")
	}
	c := dependencyChecksum([]string{"requests"})
	if c == a {
		t.Error("different dependency sets should not collide")
	}
}
