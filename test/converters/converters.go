// Package converters contains the interface that is required to be a package a test result converter.
// It must be possible to set files from outside(for example if someone wants to use
// a pre-filtered files list), need to return a test report, and needs to have a
// Detect method to see if the converter can run with the given files.
package converters

import (
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-steplib/steps-tap-consumer/tap"
	"github.com/bitrise-steplib/steps-tap-consumer/test/converters/junitxml"
	"github.com/bitrise-steplib/steps-tap-consumer/test/converters/tapfile"
	"github.com/bitrise-steplib/steps-tap-consumer/test/testreport"
)

// Intf is the required interface a converter need to match
type Intf interface {
	Setup(strict bool)
	Detect([]string) bool
	Convert() (testreport.TestReport, error)
}

// DocumentSource is implemented by converters which read TAP documents
// directly.
type DocumentSource interface {
	Documents() []*tap.Document
}

// List returns a new instance of every supported converter. Converters keep
// the detected files, so every concurrent user needs its own list.
func List(logger log.Logger) []Intf {
	return []Intf{
		&tapfile.Converter{Logger: logger},
		&junitxml.Converter{},
	}
}

// Fallback returns the converter used for files no converter detects: they
// are read as TAP.
func Fallback(files []string, logger log.Logger) Intf {
	c := &tapfile.Converter{Logger: logger}
	c.SetFiles(files)
	return c
}

// SupportedExtensions lists the extensions of the files any converter detects.
func SupportedExtensions() []string {
	var extensions []string
	extensions = append(extensions, tapfile.Extensions...)
	return append(extensions, junitxml.Extensions...)
}

// Documents returns the TAP documents behind a converted report: the parsed
// documents for TAP converters, a document built from the report otherwise.
func Documents(converter Intf, report testreport.TestReport) []*tap.Document {
	if source, ok := converter.(DocumentSource); ok {
		return source.Documents()
	}
	return []*tap.Document{tapfile.FromTestReport(report)}
}
