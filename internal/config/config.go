// Package config holds the caller-populated options spec.md §6 enumerates.
// There is no config-file parser here — deliberately, since reading
// configuration off disk is the out-of-scope driver's job (spec.md §1);
// the core only ever sees an already-populated Config value, the same
// plain-struct discipline the teacher's own internal/plan uses for its
// build plan (no flags package, no env lookups inside the generator).
package config

import (
	"snngen/internal/merge"
	"snngen/internal/model"
)

// Dialect selects which device-language spelling KernelEmitter and
// HostLauncherEmitter use for qualifiers, barriers, and atomics.
type Dialect int

const (
	CUDA Dialect = iota
	OpenCL
)

const defaultWorkgroupSize = 32

// Config is every option the core accepts, per spec.md §6.
type Config struct {
	// WorkgroupSizes maps a merge.Role to its kernel's workgroup size.
	// A role absent from the map falls back to defaultWorkgroupSize.
	WorkgroupSizes map[merge.Role]int

	ScalarPrecision model.Precision
	TimePrecision   model.Precision

	// DeviceSelection is opaque to the core and is not read by it: the
	// emitted host build-program calls pass a runtime variable named
	// deviceSelection, not this value.
	DeviceSelection string

	// AutomaticCopy, when true, suppresses push/pull helper emission:
	// device buffers alias host memory so no explicit copy is needed.
	AutomaticCopy bool

	Dialect Dialect
}

// WorkgroupSize returns the configured workgroup size for role, or
// defaultWorkgroupSize if unset.
func (c *Config) WorkgroupSize(role merge.Role) int {
	if c.WorkgroupSizes != nil {
		if n, ok := c.WorkgroupSizes[role]; ok && n > 0 {
			return n
		}
	}
	return defaultWorkgroupSize
}

// PadSize rounds n up to the next multiple of the workgroup size for role,
// the "paddedSize" function spec.md §4.3/§4.5 calls for.
func (c *Config) PadSize(role merge.Role, n int) int {
	size := c.WorkgroupSize(role)
	if n <= 0 {
		return 0
	}
	return ((n + size - 1) / size) * size
}
