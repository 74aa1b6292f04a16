// Package cvss extracts CVSS base scores from the two source feeds and
// back-fills them into already-classified output records.
package cvss

import (
	"fmt"
)

// versionPriority orders the metric blocks newest-first; the first block
// carrying a base score wins.
type versionEntry struct {
	key     string
	version string
}

var nvdPriority = []versionEntry{
	{"cvssMetricV40", "4.0"},
	{"cvssMetricV31", "3.1"},
	{"cvssMetricV30", "3.0"},
	{"cvssMetricV2", "2.0"},
}

var mitrePriority = []versionEntry{
	{"cvssV4_0", "4.0"},
	{"cvssV3_1", "3.1"},
	{"cvssV3_0", "3.0"},
	{"cvssV2_0", "2.0"},
}

// NVDBaseScore returns the highest-priority CVSS base score in an NVD
// document, with its version string. ok is false when no score exists.
func NVDBaseScore(doc map[string]any) (score float64, version string, ok bool) {
	vulns, _ := doc["vulnerabilities"].([]any)
	if len(vulns) == 0 {
		return 0, "", false
	}
	entry, _ := vulns[0].(map[string]any)
	cve, _ := entry["cve"].(map[string]any)
	metrics, _ := cve["metrics"].(map[string]any)
	if metrics == nil {
		return 0, "", false
	}

	for _, p := range nvdPriority {
		list, _ := metrics[p.key].([]any)
		if len(list) == 0 {
			continue
		}
		metric, _ := list[0].(map[string]any)
		data, _ := metric["cvssData"].(map[string]any)
		if s, ok := data["baseScore"].(float64); ok {
			return s, p.version, true
		}
	}
	return 0, "", false
}

// MITREBaseScore returns the highest-priority CVSS base score in a MITRE
// CNA document, with its version string.
func MITREBaseScore(doc map[string]any) (score float64, version string, ok bool) {
	containers, _ := doc["containers"].(map[string]any)
	cna, _ := containers["cna"].(map[string]any)
	metrics, _ := cna["metrics"].([]any)
	if len(metrics) == 0 {
		return 0, "", false
	}

	for _, p := range mitrePriority {
		for _, raw := range metrics {
			metric, _ := raw.(map[string]any)
			block, _ := metric[p.key].(map[string]any)
			if block == nil {
				continue
			}
			if s, ok := block["baseScore"].(float64); ok {
				return s, p.version, true
			}
		}
	}
	return 0, "", false
}

// Label encodes score provenance the way output records carry it:
// "<version>.<source>", e.g. "3.1.nvd".
func Label(version, source string) string {
	return fmt.Sprintf("%s.%s", version, source)
}
