package tapfile

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/bitrise-steplib/steps-tap-consumer/tap"
	"github.com/bitrise-steplib/steps-tap-consumer/test/testreport"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConverter_Detect(t *testing.T) {
	c := &Converter{}
	assert.False(t, c.Detect([]string{"report.xml", "notes.txt"}))
	assert.True(t, c.Detect([]string{"report.xml", "unit.TAP", "e2e.tap"}))
	assert.Equal(t, []string{"unit.TAP", "e2e.tap"}, c.files)
}

func TestConverter_Convert(t *testing.T) {
	c := &Converter{}
	require.True(t, c.Detect([]string{filepath.Join("testdata", "results.tap")}))

	report, err := c.Convert()
	require.NoError(t, err)
	require.Len(t, report.TestSuites, 1)

	want := testreport.TestSuite{
		Name:     "results",
		Tests:    4,
		Failures: 1,
		Skipped:  2,
		Time:     12.0 / 1000,
		TestCases: []testreport.TestCase{
			{Name: "adds", ClassName: "results", SystemOut: &testreport.SystemOut{Value: "running arithmetic"}},
			{
				Name:      "subtracts",
				ClassName: "results",
				Time:      12.0 / 1000,
				Failure:   &testreport.Failure{Message: "off by one", Value: "---\nduration_ms: 12\nmessage: off by one\n"},
			},
			{Name: "network", ClassName: "results", Skipped: &testreport.Skipped{Value: "offline"}},
			{Name: "divides", ClassName: "results", Skipped: &testreport.Skipped{Value: "TODO: not implemented"}},
		},
	}
	if diff := cmp.Diff(want, report.TestSuites[0]); diff != "" {
		t.Errorf("suite mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, c.Documents(), 1)
	summary := tap.Summarize(c.Documents()[0])
	assert.Equal(t, []int{2, 4}, summary.Failed)
	assert.True(t, summary.PlanSatisfied())
}

func TestConverter_Strict(t *testing.T) {
	files := []string{filepath.Join("testdata", "noisy.tap")}

	lenient := &Converter{}
	lenient.SetFiles(files)
	report, err := lenient.Convert()
	require.NoError(t, err)
	assert.Equal(t, 1, report.TestSuites[0].Tests)
	require.Len(t, lenient.Documents()[0].Warnings, 1)

	strict := &Converter{}
	strict.Setup(true)
	strict.SetFiles(files)
	_, err = strict.Convert()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "noisy.tap")
	assert.Contains(t, err.Error(), "line 2")
}

func TestConverter_MissingFile(t *testing.T) {
	c := &Converter{}
	c.SetFiles([]string{filepath.Join("testdata", "missing.tap")})
	_, err := c.Convert()
	require.Error(t, err)
}

func TestToTestSuite_BailOutAndSubtests(t *testing.T) {
	c := &Converter{}
	c.SetFiles([]string{filepath.Join("testdata", "bailed.tap")})
	report, err := c.Convert()
	require.NoError(t, err)

	want := testreport.TestSuite{
		Name:    "bailed",
		Tests:   4,
		Skipped: 2,
		TestCases: []testreport.TestCase{
			{Name: "connects", ClassName: "bailed"},
			{Name: "queries", ClassName: "bailed"},
			{Name: "test 3", ClassName: "bailed", Skipped: &testreport.Skipped{Value: "Bail out! database gone"}},
			{Name: "test 4", ClassName: "bailed", Skipped: &testreport.Skipped{Value: "Bail out! database gone"}},
		},
		TestSuites: []testreport.TestSuite{
			{
				Name:    "queries",
				Tests:   2,
				Skipped: 1,
				TestCases: []testreport.TestCase{
					{Name: "select", ClassName: "queries"},
					{Name: "insert", ClassName: "queries", Skipped: &testreport.Skipped{Value: "TODO: read only replica"}},
				},
			},
		},
	}
	if diff := cmp.Diff(want, report.TestSuites[0]); diff != "" {
		t.Errorf("suite mismatch (-want +got):\n%s", diff)
	}
}

func TestToTestSuite_PassingTodo(t *testing.T) {
	doc, err := tap.ParseString("ok - flaky # TODO tracked upstream\nok\n")
	require.NoError(t, err)

	suite := ToTestSuite("bonus", doc)
	require.Len(t, suite.TestCases, 2)
	reason, ok := suite.TestCases[0].Properties.Get(todoProperty)
	assert.True(t, ok)
	assert.Equal(t, "tracked upstream", reason)
	assert.Nil(t, suite.TestCases[0].Skipped)
	assert.Equal(t, "test 2", suite.TestCases[1].Name)
}

func TestToTestSuite_BailOutWithHugePlan(t *testing.T) {
	doc := &tap.Document{
		Version: tap.DefaultVersion,
		Plan:    &tap.Plan{Count: tap.MaxPlanCount * 100},
		Tests:   []tap.TestPoint{{OK: true, Number: 1}},
		Bail:    &tap.BailOut{Reason: "oom"},
	}

	suite := ToTestSuite("huge", doc)
	assert.Equal(t, tap.MaxPlanCount, suite.Tests)
	assert.Equal(t, tap.MaxPlanCount-1, suite.Skipped)

	parsed, err := tap.ParseString("ok 1\n1..9223372036854775807\nBail out! oom\n")
	require.NoError(t, err)
	suite = ToTestSuite("console", parsed)
	assert.Equal(t, 1, suite.Tests)
}

func TestFromTestReport_KeepsSummary(t *testing.T) {
	for name, wantOK := range map[string]bool{"results.tap": false, "bailed.tap": true} {
		t.Run(name, func(t *testing.T) {
			c := &Converter{}
			c.SetFiles([]string{filepath.Join("testdata", name)})
			report, err := c.Convert()
			require.NoError(t, err)
			original := tap.Summarize(c.Documents()[0])

			doc := FromTestReport(report)
			require.Len(t, doc.Tests, 1)
			assert.Equal(t, 14, doc.Version)
			assert.Equal(t, &tap.Plan{Count: 1}, doc.Plan)
			assert.Equal(t, SuiteName(name), doc.Tests[0].Subtest.Name)

			converted := tap.Summarize(doc.Tests[0].Subtest.Document)
			assert.Equal(t, original.Failed, converted.Failed)
			assert.Equal(t, original.Todo, converted.Todo)
			// a bail out survives only as skipped cases
			assert.Equal(t, wantOK, doc.Tests[0].OK)
		})
	}
}

func TestFromTestReport_Diagnostics(t *testing.T) {
	report := testreport.TestReport{TestSuites: []testreport.TestSuite{{
		Name: "calculator",
		TestCases: []testreport.TestCase{
			{Name: "adds", Time: 0.25, SystemOut: &testreport.SystemOut{Value: "first\nsecond\n"}},
			{Name: "divides", Failure: &testreport.Failure{Message: "expected an error", Value: "division returned +Inf"}},
			{Name: "crashes", Error: &testreport.Error{Value: "nil map dereference"}, SystemErr: &testreport.SystemErr{Value: "goroutine 1"}},
			{Name: "later", Skipped: &testreport.Skipped{}},
		},
		TestSuites: []testreport.TestSuite{{Name: "empty"}},
	}}}

	doc := FromTestReport(report)
	child := doc.Tests[0].Subtest.Document
	require.Len(t, child.Tests, 5)
	assert.False(t, doc.Tests[0].OK)

	assert.Equal(t, map[string]interface{}{"duration_ms": 250}, child.Tests[0].Diagnostic)
	assert.Equal(t, []string{"first", "second"}, child.Tests[0].Comments)
	assert.Equal(t, map[string]interface{}{"message": "expected an error", "data": "division returned +Inf"}, child.Tests[1].Diagnostic)
	assert.Equal(t, map[string]interface{}{"severity": "error", "data": "nil map dereference", "stderr": "goroutine 1"}, child.Tests[2].Diagnostic)
	assert.Equal(t, tap.Directive{Kind: tap.Skip}, child.Tests[3].Directive)
	assert.True(t, child.Tests[3].OK)

	empty := child.Tests[4]
	assert.True(t, empty.OK)
	assert.Equal(t, 5, empty.Number)
	assert.Equal(t, &tap.Plan{Count: 0}, empty.Subtest.Document.Plan)

	data, err := tap.Marshal(doc)
	require.NoError(t, err)
	again, err := tap.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, tap.Summarize(doc), tap.Summarize(again))
}
