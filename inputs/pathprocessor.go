package inputs

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/pathutil"
)

// StdinPath stands for the standard input in the path list.
const StdinPath = "-"

// PathProcessor is an interface for an entity which accepts test result paths separated by the
// newline (`\n`) character and returns the test result files they point to.
type PathProcessor interface {
	ProcessInputPaths(string) ([]string, error)
}

type pathProcessor struct {
	envRepository env.Repository
	pathModifier  pathutil.PathModifier
	pathChecker   pathutil.PathChecker
	extensions    []string
}

// NewPathProcessor returns a structure which implements the PathProcessor interface.
// The implementation includes handling paths defined as environment variables, relative paths,
// and absolute paths. Directories are expanded to the files with one of the given extensions
// they contain, recursively and in lexical order.
func NewPathProcessor(repository env.Repository, modifier pathutil.PathModifier, checker pathutil.PathChecker, extensions []string) PathProcessor {
	return pathProcessor{
		envRepository: repository,
		pathModifier:  modifier,
		pathChecker:   checker,
		extensions:    extensions,
	}
}

func (p pathProcessor) ProcessInputPaths(paths string) ([]string, error) {
	paths = strings.TrimSpace(paths)
	if paths == "" {
		return nil, nil
	}

	var processedPaths []string
	seenStdin := false

	list := strings.Split(paths, "\n")
	for _, item := range list {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		if item == StdinPath {
			if seenStdin {
				return nil, fmt.Errorf("standard input (%s) can only be listed once", StdinPath)
			}
			seenStdin = true
			processedPaths = append(processedPaths, StdinPath)
			continue
		}

		if strings.HasPrefix(item, "$") {
			value := p.envRepository.Get(strings.TrimPrefix(item, "$"))
			if value == "" {
				return nil, fmt.Errorf("invalid item (%s): environment variable isn't set", item)
			}
			item = value
		}

		path, err := p.pathModifier.AbsPath(item)
		if err != nil {
			return nil, err
		}

		exists, err := p.pathChecker.IsPathExists(path)
		if err != nil {
			return nil, fmt.Errorf("failed to check if path (%s) exists: %w", path, err)
		}
		if !exists {
			return nil, fmt.Errorf("path (%s) does not exist", path)
		}

		isDir, err := p.pathChecker.IsDirExists(path)
		if err != nil {
			return nil, fmt.Errorf("failed to check if path (%s) is a directory: %w", path, err)
		}
		if !isDir {
			processedPaths = append(processedPaths, path)
			continue
		}

		files, err := p.filesInDir(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no test results (%s) found in directory (%s)", strings.Join(p.extensions, ", "), path)
		}
		processedPaths = append(processedPaths, files...)
	}

	return processedPaths, nil
}

func (p pathProcessor) filesInDir(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if p.isSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list test results in directory (%s): %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}

func (p pathProcessor) isSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range p.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
