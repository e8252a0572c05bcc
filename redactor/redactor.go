package redactor

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/fileutil"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/redactwriter"
)

// SecretEnvKeyListKey holds the comma separated names of the secret environment variables.
const SecretEnvKeyListKey = "BITRISE_SECRET_ENV_KEY_LIST"

// FileRedactor is an interface for a structure which, given a slice of file paths and another slice of secrets can
// process the specified files to redact secrets from them.
type FileRedactor interface {
	RedactFiles([]string, []string) error
}

type fileRedactor struct {
	fileManager fileutil.FileManager
	logger      log.Logger
}

// NewFileRedactor returns a structure that implements the FileRedactor interface
func NewFileRedactor(manager fileutil.FileManager, logger log.Logger) FileRedactor {
	return fileRedactor{
		fileManager: manager,
		logger:      logger,
	}
}

func (f fileRedactor) RedactFiles(filePaths []string, secrets []string) error {
	if len(secrets) == 0 {
		return nil
	}

	for _, path := range filePaths {
		if err := f.redactFile(path, secrets); err != nil {
			return fmt.Errorf("failed to redact file (%s): %w", path, err)
		}
	}

	return nil
}

func (f fileRedactor) redactFile(path string, secrets []string) error {
	source, err := f.fileManager.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file for redaction (%s): %w", path, err)
	}
	defer func() {
		if err := source.Close(); err != nil {
			f.logger.Warnf("Failed to close file: %s", err)
		}
	}()

	newPath := path + ".redacted"
	destination, err := os.Create(newPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file for redaction: %w", err)
	}
	defer func() {
		if err := destination.Close(); err != nil {
			f.logger.Warnf("Failed to close file: %s", err)
		}
	}()

	redactWriter := redactwriter.New(secrets, destination, f.logger)
	if _, err := io.Copy(redactWriter, source); err != nil {
		return fmt.Errorf("failed to redact secrets: %w", err)
	}

	if err := redactWriter.Close(); err != nil {
		return fmt.Errorf("failed to close redact writer: %w", err)
	}

	// rename new file to old file name
	if err := os.Rename(newPath, path); err != nil {
		return fmt.Errorf("failed to overwrite old file (%s) with redacted file: %w", path, err)
	}

	return nil
}

// SecretValues returns the values of the secret environment variables listed
// in BITRISE_SECRET_ENV_KEY_LIST. Unset secrets are left out.
func SecretValues(repository env.Repository) []string {
	var secrets []string
	for _, key := range strings.Split(repository.Get(SecretEnvKeyListKey), ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if value := repository.Get(key); value != "" {
			secrets = append(secrets, value)
		}
	}
	return secrets
}
