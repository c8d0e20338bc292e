package collectors

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cortexd/cortexd/internal/types"
)

// AptCollector lists pending package updates via apt, flagging the subset
// that come from a security pocket. It is invoked on a cadence slower than
// the main monitor cycle (every 5th cycle per spec.md §4.4) because it
// shells out and can take seconds.
type AptCollector struct {
	binPath string
	logger  *slog.Logger
}

// NewAptCollector returns a collector invoking the given apt-get binary
// (normally "apt-get").
func NewAptCollector(binPath string, logger *slog.Logger) *AptCollector {
	return &AptCollector{binPath: binPath, logger: logger}
}

// Collect runs "apt-get -s dist-upgrade" (a simulate/no-op run) and parses
// the "Inst <name> ..." lines it prints for pending packages. Errors are
// logged and yield an empty list, never abort the caller's cycle.
func (c *AptCollector) Collect(ctx context.Context) []types.PackageUpdate {
	ctx, cancel := ctxWithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := runCommand(ctx, c.binPath, "-s", "dist-upgrade")
	if err != nil {
		c.logger.Warn("apt collect failed", "error", err)
		return nil
	}
	return parseAptSimulateOutput(out)
}

// parseAptSimulateOutput scans "apt-get -s dist-upgrade" output for lines
// of the form:
//
//	Inst name [old-version] (new-version repo [arch])
func parseAptSimulateOutput(out string) []types.PackageUpdate {
	var updates []types.PackageUpdate
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Inst ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := fields[1]

		var currentVersion, availableVersion, source string
		if open := strings.Index(line, "["); open >= 0 {
			if close := strings.Index(line[open:], "]"); close >= 0 {
				currentVersion = line[open+1 : open+close]
			}
		}
		if open := strings.Index(line, "("); open >= 0 {
			if close := strings.Index(line[open:], ")"); close >= 0 {
				inner := strings.Fields(line[open+1 : open+close])
				if len(inner) >= 1 {
					availableVersion = inner[0]
				}
				if len(inner) >= 2 {
					source = inner[1]
				}
			}
		}

		updates = append(updates, types.PackageUpdate{
			Name:             name,
			CurrentVersion:   currentVersion,
			AvailableVersion: availableVersion,
			Source:           source,
			IsSecurity:       strings.Contains(strings.ToLower(source), "security"),
		})
	}
	return updates
}

// CountSecurity returns how many of updates are flagged security.
func CountSecurity(updates []types.PackageUpdate) int {
	n := 0
	for _, u := range updates {
		if u.IsSecurity {
			n++
		}
	}
	return n
}
