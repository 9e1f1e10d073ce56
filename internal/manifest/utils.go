package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileName is the manifest name used by extraction.
const FileName = "manifest.yaml"

// FrameName is the file name of the i-th extracted frame.
func FrameName(prefix string, i int) string {
	return fmt.Sprintf("%s_%03d.png", prefix, i)
}

// FramePath is FrameName inside dir.
func FramePath(dir, prefix string, i int) string {
	return filepath.Join(dir, FrameName(prefix, i))
}

// FindLatestManifest finds the most recent YAML manifest in dir
func FindLatestManifest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read manifest directory: %w", err)
	}

	var manifests []string
	for _, entry := range entries {
		if !entry.IsDir() && (strings.HasSuffix(entry.Name(), ".yaml") || strings.HasSuffix(entry.Name(), ".yml")) {
			manifests = append(manifests, filepath.Join(dir, entry.Name()))
		}
	}

	if len(manifests) == 0 {
		return "", fmt.Errorf("no manifest files found in %s", dir)
	}

	// Sort by modification time (newest first)
	sort.Slice(manifests, func(i, j int) bool {
		infoI, _ := os.Stat(manifests[i])
		infoJ, _ := os.Stat(manifests[j])
		return infoI.ModTime().After(infoJ.ModTime())
	})

	return manifests[0], nil
}
