// Package tap parses and serializes Test Anything Protocol streams.
//
// The parser understands TAP 12, 13 and 14: version line, plan, test points
// with SKIP and TODO directives, comments, YAML diagnostic blocks, pragmas,
// bail out lines and indented subtests. The encoder writes TAP 14.
package tap

import "fmt"

// DefaultVersion is the version of a stream without a version line.
const DefaultVersion = 12

// MaxPlanCount is the largest plan the parser accepts. Larger plans are
// reported as problems and dropped.
const MaxPlanCount = 100000

// DirectiveKind is the kind of a test point directive.
type DirectiveKind int

// Directive kinds
const (
	NoDirective DirectiveKind = iota
	Skip
	Todo
)

func (k DirectiveKind) String() string {
	switch k {
	case Skip:
		return "SKIP"
	case Todo:
		return "TODO"
	default:
		return ""
	}
}

// Directive is the `# SKIP reason` or `# TODO reason` part of a test point.
type Directive struct {
	Kind   DirectiveKind
	Reason string
}

// Plan is the `1..N` line. SkipReason is only recorded when the plan comment
// starts with SKIP or the plan is `1..0`.
type Plan struct {
	Count      int
	SkipReason string
	// Trailing is set when the plan line came after the test points.
	Trailing bool
}

// BailOut is a `Bail out! reason` line, it ends the stream.
type BailOut struct {
	Reason string
}

// Pragma is a `pragma +key` / `pragma -key` line.
type Pragma struct {
	Key     string
	Enabled bool
}

// Subtest is an indented child stream owned by the test point following it.
type Subtest struct {
	Name     string
	Document *Document
}

// TestPoint is a single `ok` / `not ok` line with everything attached to it.
type TestPoint struct {
	OK          bool
	Number      int
	Description string
	Directive   Directive
	Diagnostic  map[string]interface{}
	Comments    []string
	Subtest     *Subtest
}

// Skipped ...
func (t TestPoint) Skipped() bool {
	return t.Directive.Kind == Skip
}

// Todo ...
func (t TestPoint) Todo() bool {
	return t.Directive.Kind == Todo
}

// Warning is a non-fatal finding of the parser.
type Warning struct {
	Line int
	Msg  string
}

// String formats the warning as `line N: msg`.
func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Msg)
}

// Expected returns the planned count, capped at MaxPlanCount.
func (p Plan) Expected() int {
	if p.Count > MaxPlanCount {
		return MaxPlanCount
	}
	return p.Count
}

// Document is a parsed TAP stream.
type Document struct {
	Version  int
	Pragmas  []Pragma
	Plan     *Plan
	Tests    []TestPoint
	Bail     *BailOut
	Comments []string

	Warnings []Warning
}

// NewDocument returns an empty TAP 14 document.
func NewDocument() *Document {
	return &Document{Version: 14}
}
