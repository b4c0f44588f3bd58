//go:build !linux

package procs

import (
	"fmt"
	"runtime"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
)

// EnumerateProcesses is unimplemented on non-Linux platforms: process
// enumeration here is sourced from procfs, which only Linux exposes (§9
// Open Questions notes this is platform-dependent outside the core
// contract). Callers should inject a platform-specific enumerator via
// NewWithEnumerator on other OSes.
func EnumerateProcesses() ([]model.ProcessEntry, error) {
	return nil, fmt.Errorf("procs: no process enumerator for GOOS=%s", runtime.GOOS)
}
