package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// evaluatePaths expands glob patterns and keeps the regular files among the results.
func (s uploadStep) evaluatePaths(paths []string) ([]string, error) {
	var expandedPaths []string
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if !strings.Contains(path, "*") {
			expandedPaths = append(expandedPaths, path)
			continue
		}

		base, pattern := doublestar.SplitPattern(path)
		absBase, err := s.pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), pattern)
		if err != nil {
			s.logger.Warnf("Error in path pattern '%s': %s", path, err)
			continue
		}
		if matches == nil {
			s.logger.Warnf("No match for path pattern: %s", path)
			continue
		}

		for _, match := range matches {
			expandedPaths = append(expandedPaths, filepath.Join(base, match))
		}
	}

	var finalPaths []string
	seen := map[string]bool{}
	for _, path := range expandedPaths {
		absPath, err := s.pathModifier.AbsPath(path)
		if err != nil {
			s.logger.Warnf("Failed to parse path %s, error: %s", path, err)
			continue
		}
		if seen[absPath] {
			continue
		}

		exists, err := s.pathChecker.IsPathExists(absPath)
		if err != nil {
			s.logger.Warnf("Failed to check path %s, error: %s", absPath, err)
			continue
		}
		if !exists {
			s.logger.Warnf("Path does not exist: %s", absPath)
			continue
		}
		isDir, err := s.pathChecker.IsDirExists(absPath)
		if err != nil {
			s.logger.Warnf("Failed to check path %s, error: %s", absPath, err)
			continue
		}
		if isDir {
			s.logger.Warnf("Skipping directory: %s", absPath)
			continue
		}

		seen[absPath] = true
		finalPaths = append(finalPaths, absPath)
	}

	if len(finalPaths) == 0 {
		return nil, fmt.Errorf("no files to upload")
	}
	return finalPaths, nil
}
