package secrets

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/golang/glog"
)

// searchDirs lists where FindKeyFile looks, in order: the working
// directory, $INTERSECT_HOME, the user configuration directory and the
// directory holding the binary.
func searchDirs() []string {
	dirs := []string{"."}
	if home := os.Getenv("INTERSECT_HOME"); home != "" {
		dirs = append(dirs, home)
	}
	if cfg, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(cfg, "intersect"))
	}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	return dirs
}

// FindKeyFile returns the first existing regular file called fileName in
// the search directories, or "" when there is none.
func FindKeyFile(fileName string) string {
	for _, dir := range searchDirs() {
		path := filepath.Join(dir, fileName)
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			glog.V(1).Infof("secrets.FindKeyFile(%q)=%s", fileName, path)
			return path
		}
	}
	return ""
}

// SetupKeyFileFlag registers a string flag on fs that defaults to
// FindKeyFile(fileName).
func SetupKeyFileFlag(fs *flag.FlagSet, fileName, flagName string, flagPtr *string) {
	fs.StringVar(flagPtr, flagName, FindKeyFile(fileName), "path to the hex encoded "+fileName+"; the development key when empty")
}
