package repo

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// skipDirs are never part of the audited tree
var skipDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
}

// Manifest lists every regular file under root as a slash-separated path
// relative to root, sorted. VCS metadata directories are excluded
func Manifest(root string) ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
