package collectors

import (
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/cortexd/cortexd/internal/types"
)

// CVECollector scans installed packages for known vulnerabilities, trying
// ubuntu-security-status first and falling back to debsecan when the
// former isn't installed (mirrors the original daemon's CVEScanner).
type CVECollector struct {
	logger            *slog.Logger
	ubuntuSecStatusBin string
	debsecanBin        string
}

// NewCVECollector returns a collector using the given binary names
// ("ubuntu-security-status", "debsecan").
func NewCVECollector(ubuntuSecStatusBin, debsecanBin string, logger *slog.Logger) *CVECollector {
	return &CVECollector{
		logger:             logger,
		ubuntuSecStatusBin: ubuntuSecStatusBin,
		debsecanBin:        debsecanBin,
	}
}

// Scan runs the primary scanner, falling back to the secondary if the
// primary binary isn't on PATH. Errors from either are logged and yield an
// empty result; a scan is never fatal to the caller's cycle.
func (c *CVECollector) Scan(ctx context.Context) []types.CVEResult {
	if commandExists(c.ubuntuSecStatusBin) {
		results, err := c.scanUbuntuSecurity(ctx)
		if err != nil {
			c.logger.Warn("ubuntu-security-status scan failed", "error", err)
		} else {
			return results
		}
	}

	if commandExists(c.debsecanBin) {
		results, err := c.scanDebsecan(ctx)
		if err != nil {
			c.logger.Warn("debsecan scan failed", "error", err)
		}
		return results
	}

	c.logger.Debug("no CVE scanner available on PATH")
	return nil
}

func commandExists(bin string) bool {
	if bin == "" {
		return false
	}
	_, err := exec.LookPath(bin)
	return err == nil
}

func (c *CVECollector) scanUbuntuSecurity(ctx context.Context) ([]types.CVEResult, error) {
	ctx, cancel := ctxWithTimeout(ctx, 60*time.Second)
	defer cancel()

	out, err := runCommand(ctx, c.ubuntuSecStatusBin, "--thirdparty")
	if err != nil {
		return nil, err
	}
	return parseUbuntuSecurityStatus(out), nil
}

func (c *CVECollector) scanDebsecan(ctx context.Context) ([]types.CVEResult, error) {
	ctx, cancel := ctxWithTimeout(ctx, 60*time.Second)
	defer cancel()

	out, err := runCommand(ctx, c.debsecanBin)
	if err != nil {
		return nil, err
	}
	return parseDebsecan(out), nil
}

// ubuntuSecurityStatusLine matches lines of the form:
//
//	openssl/1.1.1f-1ubuntu2.19 can be updated to 1.1.1f-1ubuntu2.20 (CVE-2023-1234)
var ubuntuSecurityStatusLine = regexp.MustCompile(`^([\w.+-]+)/([\w.:~+-]+) can be updated to ([\w.:~+-]+) \(([^)]+)\)`)

func parseUbuntuSecurityStatus(out string) []types.CVEResult {
	var results []types.CVEResult
	for _, line := range strings.Split(out, "\n") {
		m := ubuntuSecurityStatusLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		pkg, installed, fixed, cveList := m[1], m[2], m[3], m[4]
		for _, cve := range strings.Split(cveList, ",") {
			cve = strings.TrimSpace(cve)
			if cve == "" {
				continue
			}
			results = append(results, types.CVEResult{
				CVEID:            cve,
				PackageName:      pkg,
				InstalledVersion: installed,
				FixedVersion:     fixed,
				Severity:         types.CVEUnknown,
			})
		}
	}
	return results
}

// debsecanLine matches debsecan's default output:
//
//	CVE-2023-1234 openssl (remote-root-shell)
var debsecanLine = regexp.MustCompile(`^(CVE-\d{4}-\d+)\s+(\S+)`)

func parseDebsecan(out string) []types.CVEResult {
	var results []types.CVEResult
	for _, line := range strings.Split(out, "\n") {
		m := debsecanLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		results = append(results, types.CVEResult{
			CVEID:       m[1],
			PackageName: m[2],
			Severity:    types.CVEUnknown,
		})
	}
	return results
}
