package junitxml

import (
	"encoding/xml"

	"github.com/bitrise-steplib/steps-tap-consumer/test/testreport"
)

// TestReport ...
type TestReport struct {
	XMLName    xml.Name    `xml:"testsuites"`
	TestSuites []TestSuite `xml:"testsuite"`
}

// TestSuite ...
type TestSuite struct {
	XMLName    xml.Name    `xml:"testsuite"`
	Name       string      `xml:"name,attr"`
	Tests      int         `xml:"tests,attr"`
	Failures   int         `xml:"failures,attr"`
	Skipped    int         `xml:"skipped,attr"`
	Errors     int         `xml:"errors,attr"`
	Time       float64     `xml:"time,attr"`
	TestCases  []TestCase  `xml:"testcase"`
	TestSuites []TestSuite `xml:"testsuite"`
}

// TestCase ...
type TestCase struct {
	XMLName    xml.Name    `xml:"testcase"`
	Name       string      `xml:"name,attr"`
	ClassName  string      `xml:"classname,attr"`
	Time       float64     `xml:"time,attr"`
	Failure    *Failure    `xml:"failure,omitempty"`
	Skipped    *Skipped    `xml:"skipped,omitempty"`
	Error      *Error      `xml:"error,omitempty"`
	Properties *Properties `xml:"properties,omitempty"`
	SystemOut  string      `xml:"system-out,omitempty"`
	SystemErr  string      `xml:"system-err,omitempty"`
}

// Failure ...
type Failure struct {
	XMLName xml.Name `xml:"failure,omitempty"`
	Message string   `xml:"message,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

// Skipped ...
type Skipped struct {
	XMLName xml.Name `xml:"skipped,omitempty"`
	Message string   `xml:"message,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

// Error ...
type Error struct {
	XMLName xml.Name `xml:"error,omitempty"`
	Message string   `xml:"message,attr,omitempty"`
	Value   string   `xml:",chardata"`
}

// Properties ...
type Properties struct {
	Property []Property `xml:"property"`
}

// Property ...
type Property struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func (report TestReport) Convert() testreport.TestReport {
	return testreport.TestReport{
		TestSuites: convertSuites(report.TestSuites),
	}
}

func convertSuites(suites []TestSuite) []testreport.TestSuite {
	if len(suites) == 0 {
		return nil
	}

	testSuites := make([]testreport.TestSuite, len(suites))
	for i, suite := range suites {
		testCases := make([]testreport.TestCase, len(suite.TestCases))
		for j, testCase := range suite.TestCases {
			testCases[j] = convertCase(testCase)
		}
		testSuites[i] = testreport.TestSuite{
			Name:       suite.Name,
			Tests:      suite.Tests,
			Failures:   suite.Failures,
			Skipped:    suite.Skipped,
			Errors:     suite.Errors,
			Time:       suite.Time,
			TestCases:  testCases,
			TestSuites: convertSuites(suite.TestSuites),
		}
	}
	return testSuites
}

func convertCase(testCase TestCase) testreport.TestCase {
	converted := testreport.TestCase{
		Name:      testCase.Name,
		ClassName: testCase.ClassName,
		Time:      testCase.Time,
	}

	if testCase.Failure != nil {
		converted.Failure = &testreport.Failure{
			Message: testCase.Failure.Message,
			Value:   testCase.Failure.Value,
		}
	}
	if testCase.Skipped != nil {
		value := testCase.Skipped.Value
		if value == "" {
			value = testCase.Skipped.Message
		}
		converted.Skipped = &testreport.Skipped{Value: value}
	}
	if testCase.Error != nil {
		converted.Error = &testreport.Error{
			Message: testCase.Error.Message,
			Value:   testCase.Error.Value,
		}
	}
	if testCase.Properties != nil {
		properties := &testreport.Properties{}
		for _, property := range testCase.Properties.Property {
			properties.Property = append(properties.Property, testreport.Property{Name: property.Name, Value: property.Value})
		}
		converted.Properties = properties
	}
	if testCase.SystemOut != "" {
		converted.SystemOut = &testreport.SystemOut{Value: testCase.SystemOut}
	}
	if testCase.SystemErr != "" {
		converted.SystemErr = &testreport.SystemErr{Value: testCase.SystemErr}
	}

	return converted
}
