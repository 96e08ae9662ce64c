package service

import (
	"os"
	"path/filepath"
)

// UserDataDirName is the per-user directory searched for index files
const UserDataDirName = ".photocopy"

// CandidateDirectories lists, in priority order, the directories searched for
// the index pair: the configured path's directory, the executable's
// directory, its data subdirectory and the user's .photocopy directory.
func CandidateDirectories(configuredPath string, includeDefaults bool) []string {
	var dirs []string
	if configuredPath != "" {
		dirs = append(dirs, configuredDir(configuredPath))
	}
	if !includeDefaults {
		return dirs
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		dirs = append(dirs, exeDir, filepath.Join(exeDir, "data"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, UserDataDirName))
	}
	return dedupe(dirs)
}

// LocateDataFiles returns the first directory holding both files.
func LocateDataFiles(dirs []string, indexName, dataName string) (string, bool) {
	for _, dir := range dirs {
		if isFile(filepath.Join(dir, indexName)) && isFile(filepath.Join(dir, dataName)) {
			return dir, true
		}
	}
	return "", false
}

// configuredDir treats an existing directory, or a path without an
// extension, as a directory and anything else as a file inside one.
func configuredDir(p string) string {
	if info, err := os.Stat(p); err == nil {
		if info.IsDir() {
			return p
		}
		return filepath.Dir(p)
	}
	if filepath.Ext(p) == "" {
		return p
	}
	return filepath.Dir(p)
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func dedupe(dirs []string) []string {
	seen := make(map[string]struct{}, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		clean := filepath.Clean(d)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, d)
	}
	return out
}
