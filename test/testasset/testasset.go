package testasset

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var AssetTypes = []string{".jpg", ".jpeg", ".png", ".txt", ".log", ".mp4", ".webm", ".ogg"}

func IsSupportedAssetType(fileName string) bool {
	ext := filepath.Ext(fileName)
	return slices.Contains(AssetTypes, strings.ToLower(ext))
}

// FindAttachments lists the supported assets next to a test result file
// whose name starts with the result's name, e.g. results.log and
// results-failure.png for results.tap.
func FindAttachments(resultPath string) ([]string, error) {
	dir := filepath.Dir(resultPath)
	base := filepath.Base(resultPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var attachments []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == base {
			continue
		}
		if strings.HasPrefix(name, stem) && IsSupportedAssetType(name) {
			attachments = append(attachments, filepath.Join(dir, name))
		}
	}
	return attachments, nil
}
