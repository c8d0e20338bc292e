// Package startup probes for optional external tools cortexd's collectors
// can use. Unlike a hard dependency check, a missing binary here only
// disables the collector that needed it — the daemon always starts.
package startup

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Capabilities is which optional collector binaries were found on PATH at
// startup.
type Capabilities struct {
	AptGet               bool
	UbuntuSecurityStatus bool
	Debsecan             bool
}

// ProbeCapabilities checks each configured binary name with exec.LookPath
// and logs what it finds at INFO (missing) or DEBUG (found); it never
// returns an error; an absent tool is an expected, supported condition.
func ProbeCapabilities(aptGet, ubuntuSecStatus, debsecan string, logger *slog.Logger) Capabilities {
	return Capabilities{
		AptGet:               probe(aptGet, "apt collector", logger),
		UbuntuSecurityStatus: probe(ubuntuSecStatus, "cve collector (primary)", logger),
		Debsecan:             probe(debsecan, "cve collector (fallback)", logger),
	}
}

func probe(name, purpose string, logger *slog.Logger) bool {
	if name == "" {
		return false
	}
	if _, err := exec.LookPath(name); err != nil {
		logger.Info("optional tool not found, collector disabled", "tool", name, "purpose", purpose)
		return false
	}
	logger.Debug("optional tool found", "tool", name, "purpose", purpose)
	return true
}

// EnsurePaths creates the parent directory of each non-empty path. Used
// for the alert database and the socket's parent directory before startup
// proper begins. Failure here IS fatal (spec.md §7 "Startup" policy).
func EnsurePaths(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		dir := dirOf(p)
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create dir %s: %w", dir, err)
		}
	}
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
