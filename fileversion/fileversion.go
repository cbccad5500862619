// Package fileversion parses the Parquet footer's created_by string to
// enable the handful of bug-compatibility quirks the scanner needs: which
// writer produced the file, and which release.
package fileversion

import (
	"strconv"
	"strings"
)

// Version is the parsed form of a created_by string such as
// "impala version 1.3.0-internal (build ...)" or
// "parquet-mr version 1.8.2 (build ...)".
type Version struct {
	Application      string
	Major, Minor, Patch int
	IsImpalaInternal bool
	valid            bool
}

// Parse lowercases and tokenizes created_by, matching the first token
// triple of the form "<app> version <M.m.p>[-internal]". If no such triple
// is found, the returned Version reports Unknown() == true and all
// comparison predicates are conservatively false.
func Parse(createdBy string) Version {
	lower := strings.ToLower(strings.TrimSpace(createdBy))
	tokens := strings.Fields(lower)

	for i := 0; i+2 < len(tokens); i++ {
		if tokens[i+1] != "version" {
			continue
		}
		app := tokens[i]
		verTok := tokens[i+2]
		internal := false
		if strings.HasSuffix(verTok, "-internal") {
			internal = true
			verTok = strings.TrimSuffix(verTok, "-internal")
		}
		major, minor, patch, ok := parseTriple(verTok)
		if !ok {
			continue
		}
		return Version{
			Application:      app,
			Major:            major,
			Minor:            minor,
			Patch:            patch,
			IsImpalaInternal: internal && app == "impala",
			valid:            true,
		}
	}
	return Version{}
}

func parseTriple(s string) (major, minor, patch int, ok bool) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) == 0 {
		return 0, 0, 0, false
	}
	nums := make([]int, 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(trimNonDigits(parts[i]))
		if err != nil {
			return 0, 0, 0, false
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], true
}

func trimNonDigits(s string) string {
	end := len(s)
	for end > 0 && (s[end-1] < '0' || s[end-1] > '9') {
		end--
	}
	return s[:end]
}

// Unknown reports whether created_by failed to parse into an "<app> version
// <M.m.p>" triple.
func (v Version) Unknown() bool { return !v.valid }

func (v Version) cmp(major, minor, patch int) int {
	switch {
	case v.Major != major:
		return sign(v.Major - major)
	case v.Minor != minor:
		return sign(v.Minor - minor)
	default:
		return sign(v.Patch - patch)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Lt reports whether v is strictly less than major.minor.patch. Unknown
// versions always compare false, matching the source's conservative stance
// on bug-compatibility quirks (apply them only to recognized versions).
func (v Version) Lt(major, minor, patch int) bool {
	return v.valid && v.cmp(major, minor, patch) < 0
}

// Eq reports whether v equals major.minor.patch exactly.
func (v Version) Eq(major, minor, patch int) bool {
	return v.valid && v.cmp(major, minor, patch) == 0
}

// IsApplication reports whether the created_by application token matches
// name exactly (e.g. "parquet-mr", "impala").
func (v Version) IsApplication(name string) bool {
	return v.valid && v.Application == name
}
