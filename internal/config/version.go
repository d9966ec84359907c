package config

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// SchemaVersion is the "major.minor" version carried by schema_version.
type SchemaVersion struct {
	Major int
	Minor int
}

// SupportedVersions lists the schema versions this build reads.
var SupportedVersions = []SchemaVersion{{Major: 1, Minor: 0}}

// ParseVersion parses "major.minor". An empty string is the current version.
func ParseVersion(s string) (SchemaVersion, error) {
	if s == "" {
		s = CurrentSchemaVersion
	}
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return SchemaVersion{}, fmt.Errorf("invalid version format: %s (expected X.Y)", s)
	}

	var v SchemaVersion
	var err error
	if v.Major, err = strconv.Atoi(major); err != nil || v.Major < 0 {
		return SchemaVersion{}, fmt.Errorf("invalid major version: %s", major)
	}
	if v.Minor, err = strconv.Atoi(minor); err != nil || v.Minor < 0 {
		return SchemaVersion{}, fmt.Errorf("invalid minor version: %s", minor)
	}
	return v, nil
}

func (v SchemaVersion) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// Compare orders versions by major, then minor.
func (v SchemaVersion) Compare(other SchemaVersion) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	return cmp.Compare(v.Minor, other.Minor)
}

// IsSupportedVersion reports whether v can be read. Minor revisions only add
// optional attributes, so any minor of a supported major is accepted.
func IsSupportedVersion(v SchemaVersion) bool {
	for _, s := range SupportedVersions {
		if v.Major == s.Major {
			return true
		}
	}
	return false
}
