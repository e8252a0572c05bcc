// Package tapfile converts TAP streams into test reports and back.
package tapfile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-steplib/steps-tap-consumer/tap"
	"github.com/bitrise-steplib/steps-tap-consumer/test/testreport"
	"github.com/pkg/errors"
)

// Extensions lists the file extensions the converter picks up.
var Extensions = []string{".tap"}

// Converter parses TAP files. Every file becomes one test suite.
type Converter struct {
	Logger log.Logger

	strict    bool
	files     []string
	documents []*tap.Document
}

func (c *Converter) Setup(strict bool) {
	c.strict = strict
}

// Detect return true if the test results contain a TAP file
func (c *Converter) Detect(files []string) bool {
	c.files = nil
	for _, file := range files {
		if isTAPFile(file) {
			c.files = append(c.files, file)
		}
	}
	return len(c.files) > 0
}

// SetFiles forces the converter to read the given files as TAP, whatever
// their extension.
func (c *Converter) SetFiles(files []string) {
	c.files = append([]string{}, files...)
}

func (c *Converter) Convert() (testreport.TestReport, error) {
	logger := c.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	parser := tap.NewParser(tap.WithStrict(c.strict), tap.WithLogger(logger))

	c.documents = nil
	var report testreport.TestReport
	for _, file := range c.files {
		doc, err := parseFile(parser, file)
		if err != nil {
			return testreport.TestReport{}, err
		}

		for _, warning := range doc.Warnings {
			logger.Debugf("%s:%d: %s", file, warning.Line, warning.Msg)
		}

		c.documents = append(c.documents, doc)
		report.TestSuites = append(report.TestSuites, ToTestSuite(SuiteName(file), doc))
	}

	return report, nil
}

// Documents returns the documents read by the last Convert call, in the
// order of the detected files.
func (c *Converter) Documents() []*tap.Document {
	return c.documents
}

// SuiteName is the file name without its extension.
func SuiteName(pth string) string {
	base := filepath.Base(pth)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func isTAPFile(pth string) bool {
	ext := strings.ToLower(filepath.Ext(pth))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func parseFile(parser *tap.Parser, pth string) (*tap.Document, error) {
	f, err := os.Open(pth)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	doc, err := parser.Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", pth)
	}
	return doc, nil
}
