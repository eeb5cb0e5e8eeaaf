// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package version parses semantic version strings and stamps application
// versions with the commit they were built from.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// semanticAlphabet is the set of characters allowed in the pre-release and
// build metadata of a semantic version.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

// semverRE is the semver.org 2.0.0 grammar.
var semverRE = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*` +
	`[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

// SemVer is a parsed semantic version.
type SemVer struct {
	Major, Minor, Patch uint32
	PreRelease          string
	BuildMetadata       string
}

// String formats the version, e.g. 1.2.3-pre+abcdef.
func (v *SemVer) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.PreRelease != "" {
		s += "-" + v.PreRelease
	}
	if v.BuildMetadata != "" {
		s += "+" + v.BuildMetadata
	}
	return s
}

// ParseSemVer parses a full semantic version string.
func ParseSemVer(s string) (*SemVer, error) {
	m := semverRE.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("malformed version string %q: does not conform to "+
			"semver specification", s)
	}
	v := &SemVer{PreRelease: m[4], BuildMetadata: m[5]}
	for i, p := range []*uint32{&v.Major, &v.Minor, &v.Patch} {
		n, err := strconv.ParseUint(m[i+1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed semver %s: %w", []string{"major", "minor", "patch"}[i], err)
		}
		*p = uint32(n)
	}
	return v, nil
}

// Parse checks that version is a full semantic version and, if it has no
// build metadata, adds the VCS commit the binary was built from when that is
// known. It panics on a malformed version, since the version is set at build
// time.
func Parse(version string) string {
	v, err := ParseSemVer(version)
	if err != nil {
		panic(err)
	}
	if v.BuildMetadata == "" {
		v.BuildMetadata = NormalizeString(vcsCommitID())
	}
	return v.String()
}

// NormalizeString strips the characters that are not allowed in pre-release
// and build metadata.
func NormalizeString(str string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(semanticAlphabet, r) {
			return r
		}
		return -1
	}, str)
}
