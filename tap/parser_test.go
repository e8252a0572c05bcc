package tap

import (
	"strings"
	"testing"

	"github.com/kr/pretty"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Diagnostics(t *testing.T) {
	input := `TAP version 13
1..2
not ok 1 - compares output
  ---
  message: values differ
  severity: fail
  data:
    got: 1
    expect: 2
  ...
ok 2 - list diagnostic
  ---
  - first
  - second
  ...
`
	doc, err := ParseString(input)
	require.NoError(t, err)
	require.Len(t, doc.Tests, 2)

	want := map[string]interface{}{
		"message":  "values differ",
		"severity": "fail",
		"data": map[string]interface{}{
			"got":    1,
			"expect": 2,
		},
	}
	if diffs := pretty.Diff(want, doc.Tests[0].Diagnostic); len(diffs) > 0 {
		t.Errorf("unexpected diagnostic: %v", diffs)
	}
	assert.Equal(t, map[string]interface{}{"data": []interface{}{"first", "second"}}, doc.Tests[1].Diagnostic)
	assert.Empty(t, doc.Warnings)
}

func TestParse_InvalidYAML(t *testing.T) {
	input := "ok 1\n  ---\n  key: [unclosed\n  ...\n"

	doc, err := ParseString(input)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"raw": "key: [unclosed"}, doc.Tests[0].Diagnostic)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, 2, doc.Warnings[0].Line)

	_, err = NewParser(WithStrict(true)).Parse(strings.NewReader(input))
	require.Error(t, err)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, perr.Line)
}

func TestParse_PlanTooLarge(t *testing.T) {
	input := "1..9223372036854775807\nok 1\n"

	doc, err := ParseString(input)
	require.NoError(t, err)
	assert.Nil(t, doc.Plan)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, Warning{Line: 1, Msg: "plan exceeds 100000 tests"}, doc.Warnings[0])
	assert.Equal(t, "line 1: plan exceeds 100000 tests", doc.Warnings[0].String())

	summary := Summarize(doc)
	assert.Empty(t, summary.Missing)
	assert.True(t, summary.SuitePassed())

	_, err = NewParser(WithStrict(true)).Parse(strings.NewReader(input))
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1, perr.Line)
}

func TestParse_UnterminatedYAML(t *testing.T) {
	doc, err := ParseString("not ok 1\n  ---\n  message: boom\nok 2\n")
	require.NoError(t, err)
	require.Len(t, doc.Tests, 2)
	assert.Equal(t, map[string]interface{}{"message": "boom"}, doc.Tests[0].Diagnostic)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, "unterminated YAML block", doc.Warnings[0].Msg)
}

func TestParse_Strict(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
		wantMsg  string
	}{
		{name: "noise", input: "TAP version 14\n1..1\nnoise\nok 1\n", wantLine: 3, wantMsg: "ignoring non-TAP line"},
		{name: "second plan", input: "1..1\nok 1\n1..1\n", wantLine: 3, wantMsg: "more than one plan"},
		{name: "late version", input: "ok 1\nTAP version 14\n", wantLine: 2, wantMsg: "version line must come first"},
		{name: "stray yaml", input: "1..0\n  ---\n", wantLine: 2, wantMsg: "YAML block without a test point"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(WithStrict(true)).Parse(strings.NewReader(tt.input))
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr), "error %v is not a ParseError", err)
			assert.Equal(t, tt.wantLine, perr.Line)
			assert.Equal(t, tt.wantMsg, perr.Msg)

			doc, err := ParseString(tt.input)
			require.NoError(t, err)
			require.Len(t, doc.Warnings, 1)
			assert.Equal(t, tt.wantLine, doc.Warnings[0].Line)
		})
	}
}

func TestParse_StrictPragma(t *testing.T) {
	input := "TAP version 14\nnoise before\npragma +strict\nok 1\nnoise after\n"

	_, err := ParseString(input)
	require.Error(t, err)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 5, perr.Line)

	doc, err := ParseString("TAP version 14\npragma +strict\npragma -strict\nnoise\nok 1\n")
	require.NoError(t, err)
	assert.Equal(t, []Pragma{{Key: "strict", Enabled: true}, {Key: "strict", Enabled: false}}, doc.Pragmas)
	assert.Len(t, doc.Warnings, 1)
}

func TestParse_Subtests(t *testing.T) {
	input := `TAP version 14
# Subtest: outer
    # Subtest: inner
        ok 1 - deep
        1..1
    ok 1 - inner
    not ok 2 - sibling
    1..2
not ok 1 - outer
    ok 1 - unnamed child
ok 2 - second
1..2
`
	doc, err := ParseString(input)
	require.NoError(t, err)
	assert.Empty(t, doc.Warnings)
	require.Len(t, doc.Tests, 2)

	outer := doc.Tests[0]
	require.NotNil(t, outer.Subtest)
	assert.Equal(t, "outer", outer.Subtest.Name)
	assert.Equal(t, "outer", outer.Description)
	assert.False(t, outer.OK)

	outerDoc := outer.Subtest.Document
	require.Len(t, outerDoc.Tests, 2)
	require.NotNil(t, outerDoc.Plan)
	assert.True(t, outerDoc.Plan.Trailing)

	inner := outerDoc.Tests[0].Subtest
	require.NotNil(t, inner)
	assert.Equal(t, "inner", inner.Name)
	require.Len(t, inner.Document.Tests, 1)
	assert.Equal(t, "deep", inner.Document.Tests[0].Description)
	assert.Nil(t, outerDoc.Tests[1].Subtest)

	second := doc.Tests[1]
	require.NotNil(t, second.Subtest)
	assert.Equal(t, "", second.Subtest.Name)
	assert.Equal(t, "unnamed child", second.Subtest.Document.Tests[0].Description)
}

func TestParse_SubtestWithoutParent(t *testing.T) {
	doc, err := ParseString("# Subtest: orphan\n    ok 1\n    1..1\n")
	require.NoError(t, err)
	require.Len(t, doc.Tests, 1)
	assert.False(t, doc.Tests[0].OK)
	assert.Equal(t, "orphan", doc.Tests[0].Description)
	require.Len(t, doc.Warnings, 1)
	assert.Contains(t, doc.Warnings[0].Msg, `"orphan"`)
}

func TestParse_BailOutInSubtest(t *testing.T) {
	input := "1..3\nok 1\n    # Subtest: db\n    ok 1\n    Bail out! database gone\nok 2 - db\nok 3\n"

	doc, err := ParseString(input)
	require.NoError(t, err)
	require.NotNil(t, doc.Bail)
	assert.Equal(t, "database gone", doc.Bail.Reason)
	require.Len(t, doc.Tests, 2)
	assert.False(t, doc.Tests[1].OK)
	require.NotNil(t, doc.Tests[1].Subtest)
	assert.Equal(t, "db", doc.Tests[1].Subtest.Name)

	out, err := Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "1..3\nok 1\n# Subtest: db\n    ok 1\n    Bail out! database gone\n", string(out))
}

func TestParse_IndentedNoiseIsIgnored(t *testing.T) {
	input := "not ok 1 - crashes\n    panic: runtime error\n    goroutine 1 [running]:\nok 2\n"

	doc, err := ParseString(input)
	require.NoError(t, err)
	require.Len(t, doc.Tests, 2)
	assert.Nil(t, doc.Tests[1].Subtest)
	assert.NotEmpty(t, doc.Warnings)
}

func TestParse_Empty(t *testing.T) {
	doc, err := ParseString("")
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, doc.Version)
	assert.Nil(t, doc.Plan)
	assert.Empty(t, doc.Tests)
}

func TestParse_TooLongLine(t *testing.T) {
	_, err := ParseString("ok 1 - " + strings.Repeat("x", maxLineSize+1) + "\n")
	require.Error(t, err)
}
