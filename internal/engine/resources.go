package engine

import (
	"fmt"
	"strings"

	units "github.com/docker/go-units"

	"apex-sandbox/internal/containermgr"
)

// parseMemoryLimit maps a memory string ("512m" | "1g" | "512k" | "<bytes>")
// to a byte count, via the same units.RAMInBytes the Docker engine itself
// uses to parse --memory.
func parseMemoryLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("engine: empty memory limit")
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("engine: invalid memory limit %q: %w", s, err)
	}
	return n, nil
}

// cpuLimitToQuota maps a fractional CPU-core count to a CPUPeriod/CPUQuota
// pair, fixing the period at 100ms.
func cpuLimitToQuota(cores float64) (period, quota int64) {
	const defaultPeriod = int64(100_000)
	return defaultPeriod, int64(cores * float64(defaultPeriod))
}

// resourceOverride builds a profile from per-execution overrides, starting
// from base so unset fields fall back to the creation-time profile per the
// recommended policy for pool-reuse interaction.
func resourceOverride(base containermgr.ResourceProfile, cpuLimit float64, memoryLimit string) (containermgr.ResourceProfile, error) {
	profile := base
	if memoryLimit != "" {
		bytes, err := parseMemoryLimit(memoryLimit)
		if err != nil {
			return profile, err
		}
		profile.MemoryBytes = bytes
	}
	if cpuLimit > 0 {
		period, quota := cpuLimitToQuota(cpuLimit)
		profile.CPUPeriod = period
		profile.CPUQuota = quota
	}
	return profile, nil
}
