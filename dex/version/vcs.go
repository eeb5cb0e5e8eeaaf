// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package version

import "runtime/debug"

// vcsCommitID attempts to return the version control system short commit hash
// that was used to build the binary. An empty string is returned when the
// build information is not available. A "-dirty" suffix is appended when the
// working tree had local modifications.
func vcsCommitID() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var vcs, revision string
	var dirty bool
	for _, bs := range bi.Settings {
		switch bs.Key {
		case "vcs":
			vcs = bs.Value
		case "vcs.revision":
			revision = bs.Value
		case "vcs.modified":
			dirty = bs.Value == "true"
		}
	}
	if vcs == "" || revision == "" {
		return ""
	}
	if vcs == "git" && len(revision) > 9 {
		revision = revision[:9]
	}
	if dirty {
		revision += "-dirty"
	}
	return revision
}
