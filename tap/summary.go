package tap

import (
	"fmt"
	"strconv"
	"strings"
)

// Summary is the outcome of a TAP document.
type Summary struct {
	Version int

	Passed  []int
	Failed  []int
	Skipped []int
	Todo    []int
	// Bonus lists the TODO tests which passed.
	Bonus []int

	Bail       bool
	BailReason string

	Planned int
	Run     int
	Missing []int
	Extra   []int

	Warnings []string
}

// Summarize walks the top level test points of the document. Subtests are
// represented by their parent test point.
//
// After a bail out the planned tests never run are skipped. Without a plan
// nothing is skipped; the bail out line itself is not counted as a test.
// Skipped and Missing list at most MaxPlanCount numbers.
func Summarize(doc *Document) Summary {
	s := Summary{Version: doc.Version}
	if s.Version == 0 {
		s.Version = DefaultVersion
	}

	expected := len(doc.Tests)
	if doc.Plan != nil {
		expected = doc.Plan.Expected()
		s.Planned = doc.Plan.Count
	}

	seen := map[int]bool{}
	for i, tp := range doc.Tests {
		num := i + 1
		if tp.Number != 0 {
			if tp.Number != num {
				s.Warnings = append(s.Warnings, fmt.Sprintf("test %d out of sequence", tp.Number))
			}
			num = tp.Number
		}
		seen[num] = true
		s.Run++

		if tp.OK {
			s.Passed = append(s.Passed, num)
		} else {
			s.Failed = append(s.Failed, num)
		}
		if tp.Skipped() {
			s.Skipped = append(s.Skipped, num)
		}
		if tp.Todo() {
			s.Todo = append(s.Todo, num)
			if tp.OK {
				s.Bonus = append(s.Bonus, num)
			}
		}
		if doc.Plan != nil && num > doc.Plan.Count {
			s.Extra = append(s.Extra, num)
		}
	}

	if doc.Bail != nil {
		s.Bail = true
		s.BailReason = doc.Bail.Reason
		for num := len(doc.Tests) + 1; num <= expected; num++ {
			s.Skipped = append(s.Skipped, num)
		}
		return s
	}

	if doc.Plan != nil {
		for num := 1; num <= doc.Plan.Expected(); num++ {
			if !seen[num] {
				s.Missing = append(s.Missing, num)
			}
		}
	}

	return s
}

// SuitePassed is true when the run was not aborted and every failure is a
// TODO test.
func (s Summary) SuitePassed() bool {
	if s.Bail {
		return false
	}
	todo := map[int]bool{}
	for _, num := range s.Todo {
		todo[num] = true
	}
	for _, num := range s.Failed {
		if !todo[num] {
			return false
		}
	}
	return true
}

// PlanSatisfied reports whether every planned test ran exactly as planned.
func (s Summary) PlanSatisfied() bool {
	return !s.Bail && s.Planned == s.Run && len(s.Missing) == 0 && len(s.Extra) == 0
}

// Text renders the human readable summary. Passed tests are listed only with
// showPassed or showAll, empty lists only with showAll.
func (s Summary) Text(showPassed, showAll bool) string {
	lines := []string{"TAP version: " + strconv.Itoa(s.Version)}
	if showPassed || showAll {
		lines = append(lines, "PASSED: "+numberList(s.Passed))
	}
	if len(s.Failed) > 0 || showAll {
		lines = append(lines, "FAILED: "+numberList(s.Failed))
	}
	if len(s.Skipped) > 0 || showAll {
		lines = append(lines, "SKIPPED: "+numberList(s.Skipped))
	}
	if len(s.Todo) > 0 || showAll {
		lines = append(lines, "TODO: "+numberList(s.Todo))
	}
	if len(s.Bonus) > 0 || showAll {
		lines = append(lines, "BONUS: "+numberList(s.Bonus))
	}
	if s.SuitePassed() {
		lines = append(lines, "PASSED")
	} else {
		lines = append(lines, "FAILED")
	}
	return strings.Join(lines, "\n")
}

func (s Summary) String() string {
	return s.Text(false, false)
}

func numberList(nums []int) string {
	parts := make([]string, 0, len(nums))
	for _, num := range nums {
		parts = append(parts, strconv.Itoa(num))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Totals aggregates the summaries of several documents.
type Totals struct {
	Documents int
	Passed    int
	Failed    int
	Skipped   int
	Todo      int
	Bonus     int
	Bailed    int
	// FailedDocuments counts the documents whose suite verdict is failed.
	FailedDocuments int
}

// Add ...
func (t *Totals) Add(s Summary) {
	t.Documents++
	t.Passed += len(s.Passed)
	t.Failed += len(s.Failed)
	t.Skipped += len(s.Skipped)
	t.Todo += len(s.Todo)
	t.Bonus += len(s.Bonus)
	if s.Bail {
		t.Bailed++
	}
	if !s.SuitePassed() {
		t.FailedDocuments++
	}
}

// SuitePassed ...
func (t Totals) SuitePassed() bool {
	return t.FailedDocuments == 0
}

func (t Totals) String() string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped, %d todo, %d bonus in %d document(s)",
		t.Passed, t.Failed, t.Skipped, t.Todo, t.Bonus, t.Documents)
}
