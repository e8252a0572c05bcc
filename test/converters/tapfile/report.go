package tapfile

import (
	"fmt"
	"math"
	"strings"

	"github.com/bitrise-steplib/steps-tap-consumer/tap"
	"github.com/bitrise-steplib/steps-tap-consumer/test/testreport"
	"gopkg.in/yaml.v3"
)

const (
	todoPrefix      = "TODO:"
	todoProperty    = "todo"
	durationKey     = "duration_ms"
	messageKey      = "message"
	dataKey         = "data"
	severityKey     = "severity"
	stderrKey       = "stderr"
	unnamedTestName = "test %d"

	yamlDocumentStart = "---\n"
)

// ToTestSuite converts a TAP document into a test suite. Subtests become
// nested suites, and after a bail out the remaining planned tests, at most
// tap.MaxPlanCount, are reported as skipped cases.
func ToTestSuite(name string, doc *tap.Document) testreport.TestSuite {
	suite := testreport.TestSuite{Name: name}

	for i, tp := range doc.Tests {
		num := i + 1
		if tp.Number != 0 {
			num = tp.Number
		}

		testCase := toTestCase(name, num, tp)
		suite.TestCases = append(suite.TestCases, testCase)
		suite.Time += testCase.Time
		if testCase.Failure != nil {
			suite.Failures++
		} else if testCase.Skipped != nil {
			suite.Skipped++
		}

		if tp.Subtest != nil && tp.Subtest.Document != nil {
			childName := tp.Subtest.Name
			if childName == "" {
				childName = testCase.Name
			}
			suite.TestSuites = append(suite.TestSuites, ToTestSuite(childName, tp.Subtest.Document))
		}
	}

	if doc.Bail != nil && doc.Plan != nil {
		reason := strings.TrimSpace("Bail out! " + doc.Bail.Reason)
		for num := len(doc.Tests) + 1; num <= doc.Plan.Expected(); num++ {
			suite.TestCases = append(suite.TestCases, testreport.TestCase{
				Name:      fmt.Sprintf(unnamedTestName, num),
				ClassName: name,
				Skipped:   &testreport.Skipped{Value: reason},
			})
			suite.Skipped++
		}
	}

	suite.Tests = len(suite.TestCases)
	return suite
}

func toTestCase(suiteName string, num int, tp tap.TestPoint) testreport.TestCase {
	testCase := testreport.TestCase{
		Name:      tp.Description,
		ClassName: suiteName,
		Time:      durationSeconds(tp.Diagnostic),
	}
	if testCase.Name == "" {
		testCase.Name = fmt.Sprintf(unnamedTestName, num)
	}

	switch {
	case !tp.OK && !tp.Todo():
		testCase.Failure = toFailure(tp.Diagnostic)
	case tp.Skipped():
		testCase.Skipped = &testreport.Skipped{Value: tp.Directive.Reason}
	case tp.Todo() && !tp.OK:
		testCase.Skipped = &testreport.Skipped{Value: strings.TrimSpace(todoPrefix + " " + tp.Directive.Reason)}
	case tp.Todo():
		testCase.Properties = &testreport.Properties{
			Property: []testreport.Property{{Name: todoProperty, Value: tp.Directive.Reason}},
		}
	}

	if len(tp.Comments) > 0 {
		testCase.SystemOut = &testreport.SystemOut{Value: strings.Join(tp.Comments, "\n")}
	}

	return testCase
}

func toFailure(diag map[string]interface{}) *testreport.Failure {
	failure := &testreport.Failure{}
	if len(diag) == 0 {
		return failure
	}

	if message, ok := diag[messageKey].(string); ok {
		failure.Message = message
	}
	if data, err := yaml.Marshal(diag); err == nil {
		failure.Value = yamlDocumentStart + string(data)
	}
	return failure
}

func durationSeconds(diag map[string]interface{}) float64 {
	var ms float64
	switch v := diag[durationKey].(type) {
	case int:
		ms = float64(v)
	case int64:
		ms = float64(v)
	case uint64:
		ms = float64(v)
	case float64:
		ms = v
	default:
		return 0
	}
	if ms < 0 {
		return 0
	}
	return ms / 1000
}

// FromTestReport converts a test report into a TAP document with one subtest
// per suite.
func FromTestReport(report testreport.TestReport) *tap.Document {
	doc := tap.NewDocument()
	doc.Tests = suitePoints(report.TestSuites, 0)
	doc.Plan = &tap.Plan{Count: len(doc.Tests)}
	return doc
}

func suitePoints(suites []testreport.TestSuite, offset int) []tap.TestPoint {
	var points []tap.TestPoint
	for i, suite := range suites {
		child := suiteDocument(suite)
		points = append(points, tap.TestPoint{
			OK:          tap.Summarize(child).SuitePassed(),
			Number:      offset + i + 1,
			Description: suite.Name,
			Subtest:     &tap.Subtest{Name: suite.Name, Document: child},
		})
	}
	return points
}

func suiteDocument(suite testreport.TestSuite) *tap.Document {
	doc := &tap.Document{Version: tap.DefaultVersion}
	for i, testCase := range suite.TestCases {
		doc.Tests = append(doc.Tests, caseToTestPoint(i+1, testCase))
	}
	doc.Tests = append(doc.Tests, suitePoints(suite.TestSuites, len(doc.Tests))...)
	doc.Plan = &tap.Plan{Count: len(doc.Tests)}
	return doc
}

func caseToTestPoint(num int, testCase testreport.TestCase) tap.TestPoint {
	tp := tap.TestPoint{
		OK:          testCase.Failure == nil && testCase.Error == nil,
		Number:      num,
		Description: testCase.Name,
	}

	if testCase.Skipped != nil {
		reason := strings.TrimSpace(testCase.Skipped.Value)
		if strings.HasPrefix(reason, todoPrefix) {
			tp.OK = false
			tp.Directive = tap.Directive{Kind: tap.Todo, Reason: strings.TrimSpace(strings.TrimPrefix(reason, todoPrefix))}
		} else {
			tp.Directive = tap.Directive{Kind: tap.Skip, Reason: reason}
		}
	}
	if reason, ok := testCase.Properties.Get(todoProperty); ok {
		tp.Directive = tap.Directive{Kind: tap.Todo, Reason: reason}
	}

	diag := map[string]interface{}{}
	if testCase.Failure != nil {
		mergeDiagnostic(diag, testCase.Failure.Message, testCase.Failure.Value)
	}
	if testCase.Error != nil {
		diag[severityKey] = "error"
		mergeDiagnostic(diag, testCase.Error.Message, testCase.Error.Value)
	}
	if testCase.SystemErr != nil && testCase.SystemErr.Value != "" {
		diag[stderrKey] = testCase.SystemErr.Value
	}
	if testCase.Time > 0 {
		diag[durationKey] = int(math.Round(testCase.Time * 1000))
	}
	if len(diag) > 0 {
		tp.Diagnostic = diag
	}

	if testCase.SystemOut != nil && testCase.SystemOut.Value != "" {
		tp.Comments = strings.Split(strings.TrimRight(testCase.SystemOut.Value, "\n"), "\n")
	}

	return tp
}

// mergeDiagnostic restores the diagnostic a failure text was dumped from, or
// keeps the free text under the data key.
func mergeDiagnostic(diag map[string]interface{}, message, value string) {
	var decoded map[string]interface{}
	if !strings.HasPrefix(value, yamlDocumentStart) || yaml.Unmarshal([]byte(value), &decoded) != nil {
		decoded = nil
	}

	if len(decoded) > 0 {
		for k, v := range decoded {
			diag[k] = v
		}
	} else if strings.TrimSpace(value) != "" {
		diag[dataKey] = value
	}
	if message != "" {
		diag[messageKey] = message
	}
}
