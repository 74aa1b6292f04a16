// Package grouping pairs related input files into per-CVE groups.
//
// A record arrives as up to two documents about the same vulnerability:
// a government-feed export (.nvd) and a CNA feed export (.mitre). Groups
// are keyed by file basename; a group is eligible for classification as
// soon as either side is present.
package grouping

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Source tags for the two feeds.
const (
	SourceNVD   = "nvd"
	SourceMITRE = "mitre"
)

// Group maps a source tag to the filename carrying that side.
type Group map[string]string

var cvePattern = regexp.MustCompile(`(?i)CVE-\d{4}-\d+`)

// CanonicalID extracts the canonical CVE identifier from a name,
// uppercased. When no identifier is present the name itself is returned.
func CanonicalID(name string) string {
	if m := cvePattern.FindString(name); m != "" {
		return strings.ToUpper(m)
	}
	return name
}

// ScanDirectory scans dir non-recursively and groups .nvd/.mitre files by
// basename. Files with any other extension are ignored.
func ScanDirectory(dir string) (map[string]Group, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", dir, err)
	}

	groups := make(map[string]Group)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".nvd" && ext != ".mitre" {
			continue
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if groups[base] == nil {
			groups[base] = make(Group)
		}
		groups[base][ext[1:]] = name
	}
	return groups, nil
}

// SingleFile builds a one-entry group map for a single input file and
// returns the directory the filenames are relative to.
//
// A .json file is treated as an already-merged document and registered as
// a complete mitre-only group. A .nvd or .mitre file is registered under
// its own tag, and the same directory is probed for the complementary
// sibling, which joins the group when present.
func SingleFile(path string) (map[string]Group, string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, "", fmt.Errorf("input file not found: %w", err)
	}

	dir := filepath.Dir(path)
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))

	groups := make(map[string]Group)

	switch ext {
	case ".json":
		groups[base] = Group{SourceMITRE: name}
		return groups, dir, nil
	case ".nvd", ".mitre":
		groups[base] = Group{ext[1:]: name}
	default:
		return nil, "", fmt.Errorf("unsupported file extension: %s", ext)
	}

	partnerExt := ".mitre"
	if ext == ".mitre" {
		partnerExt = ".nvd"
	}
	partner := base + partnerExt
	if _, err := os.Stat(filepath.Join(dir, partner)); err == nil {
		groups[base][partnerExt[1:]] = partner
	}

	return groups, dir, nil
}
