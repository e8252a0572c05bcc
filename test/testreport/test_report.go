package testreport

import (
	"encoding/xml"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// TestReport is the internal test report structure used to present test results.
type TestReport struct {
	XMLName    xml.Name    `xml:"testsuites"`
	TestSuites []TestSuite `xml:"testsuite"`
}

type TestSuite struct {
	XMLName    xml.Name    `xml:"testsuite"`
	Name       string      `xml:"name,attr"`
	Tests      int         `xml:"tests,attr"`
	Failures   int         `xml:"failures,attr"`
	Errors     int         `xml:"errors,attr"`
	Skipped    int         `xml:"skipped,attr"`
	Time       float64     `xml:"time,attr"`
	TestCases  []TestCase  `xml:"testcase"`
	TestSuites []TestSuite `xml:"testsuite"`
}

type TestCase struct {
	XMLName    xml.Name    `xml:"testcase"`
	Name       string      `xml:"name,attr"`
	ClassName  string      `xml:"classname,attr"`
	Time       float64     `xml:"time,attr"`
	Error      *Error      `xml:"error,omitempty"`
	Failure    *Failure    `xml:"failure,omitempty"`
	Skipped    *Skipped    `xml:"skipped,omitempty"`
	Properties *Properties `xml:"properties,omitempty"`
	SystemOut  *SystemOut  `xml:"system-out,omitempty"`
	SystemErr  *SystemErr  `xml:"system-err,omitempty"`
}

type Error struct {
	XMLName xml.Name `xml:"error,omitempty"`
	Message string   `xml:"message,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

type Failure struct {
	XMLName xml.Name `xml:"failure,omitempty"`
	Message string   `xml:"message,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

type Skipped struct {
	XMLName xml.Name `xml:"skipped,omitempty"`
	Value   string   `xml:",chardata"`
}

type Property struct {
	XMLName xml.Name `xml:"property"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

type Properties struct {
	XMLName  xml.Name   `xml:"properties"`
	Property []Property `xml:"property"`
}

// Get returns the value of the first property with the given name.
func (p *Properties) Get(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, property := range p.Property {
		if property.Name == name {
			return property.Value, true
		}
	}
	return "", false
}

type SystemOut struct {
	XMLName xml.Name `xml:"system-out,omitempty"`
	Value   string   `xml:",chardata"`
}

type SystemErr struct {
	XMLName xml.Name `xml:"system-err,omitempty"`
	Value   string   `xml:",chardata"`
}

// Marshal returns the indented XML document of the report, including the XML header.
func (r TestReport) Marshal() ([]byte, error) {
	data, err := xml.MarshalIndent(r, "", " ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xmlHeader), data...), nil
}

// Totals sums the case counters of every suite, nested suites included.
func (r TestReport) Totals() (tests, failures, skipped int) {
	var walk func(suites []TestSuite)
	walk = func(suites []TestSuite) {
		for _, suite := range suites {
			tests += suite.Tests
			failures += suite.Failures + suite.Errors
			skipped += suite.Skipped
			walk(suite.TestSuites)
		}
	}
	walk(r.TestSuites)
	return
}
