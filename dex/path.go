// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// CleanAndExpandPath expands environment variables and a leading ~ or ~user
// in the path, and cleans the result. Expansion that fails leaves the path
// as it is, cleaned.
func CleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}
	// Windows %VARIABLE% is not expanded, but $VARIABLE is.
	path = os.ExpandEnv(path)
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// On Windows, either slash ends the user name.
	name, rest := path[1:], ""
	if i := strings.IndexAny(name, `/`+string(os.PathSeparator)); i >= 0 {
		name, rest = name[:i], name[i:]
	}

	var home string
	if name == "" {
		home, _ = os.UserHomeDir()
	} else if u, err := user.Lookup(name); err == nil {
		home = u.HomeDir
	}
	if home == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(home, rest)
}
