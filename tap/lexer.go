package tap

import (
	"regexp"
	"strconv"
	"strings"
)

type lineKind int

const (
	blankLine lineKind = iota
	unknownLine
	versionLine
	planLine
	testLine
	bailLine
	commentLine
	pragmaLine
	yamlStartLine
	yamlEndLine
)

func (k lineKind) String() string {
	return [...]string{"blank", "unknown", "version", "plan", "test", "bail", "comment", "pragma", "yaml-start", "yaml-end"}[k]
}

const tabWidth = 4

var (
	versionPattern = regexp.MustCompile(`^TAP version (\d+)\s*$`)
	planPattern    = regexp.MustCompile(`^1\.\.(\d+)\s*(?:#\s*(.*?))?\s*$`)
	testPattern    = regexp.MustCompile(`^(not ok|ok)\b(.*)$`)
	numberPattern  = regexp.MustCompile(`^\s+(\d+)\b(.*)$`)
	bailPattern    = regexp.MustCompile(`^Bail out!\s*(.*?)\s*$`)
	pragmaPattern  = regexp.MustCompile(`^pragma ([+-])([A-Za-z0-9_-]+)\s*$`)
	subtestPattern = regexp.MustCompile(`^#\s*Subtest:?\s*(.*?)\s*$`)
)

type line struct {
	num    int
	indent int
	raw    string
	text   string
	kind   lineKind

	version int
	plan    Plan
	test    TestPoint
	bail    BailOut
	pragma  Pragma
	comment string
	subtest string
	// isSubtest marks a `# Subtest: name` header comment.
	isSubtest bool
	// planTooLarge marks a plan above MaxPlanCount.
	planTooLarge bool
}

// measureIndent returns the width of the leading whitespace and the rest of the line.
func measureIndent(s string) (int, string) {
	width := 0
	for i, r := range s {
		switch r {
		case ' ':
			width++
		case '\t':
			width += tabWidth
		default:
			return width, s[i:]
		}
	}
	return width, ""
}

func lex(num int, raw string) line {
	raw = strings.TrimSuffix(raw, "\r")
	indent, text := measureIndent(raw)
	l := line{num: num, indent: indent, raw: raw, text: strings.TrimRight(text, " \t")}

	t := l.text
	switch {
	case t == "":
		l.kind = blankLine
	case t == "---":
		l.kind = yamlStartLine
	case t == "...":
		l.kind = yamlEndLine
	case strings.HasPrefix(t, "#"):
		l.kind = commentLine
		if m := subtestPattern.FindStringSubmatch(t); m != nil {
			l.isSubtest = true
			l.subtest = m[1]
		}
		l.comment = strings.TrimPrefix(strings.TrimPrefix(t, "#"), " ")
	case strings.HasPrefix(t, "Bail out!"):
		l.kind = bailLine
		l.bail.Reason = bailPattern.FindStringSubmatch(t)[1]
	default:
		if m := versionPattern.FindStringSubmatch(t); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil && v >= 13 {
				l.kind = versionLine
				l.version = v
				return l
			}
		}
		if m := planPattern.FindStringSubmatch(t); m != nil {
			l.kind = planLine
			count, err := strconv.Atoi(m[1])
			if err != nil || count > MaxPlanCount {
				l.planTooLarge = true
				return l
			}
			l.plan = Plan{Count: count, SkipReason: planSkipReason(count, m[2])}
			return l
		}
		if m := pragmaPattern.FindStringSubmatch(t); m != nil {
			l.kind = pragmaLine
			l.pragma = Pragma{Key: m[2], Enabled: m[1] == "+"}
			return l
		}
		if m := testPattern.FindStringSubmatch(t); m != nil {
			l.kind = testLine
			l.test = lexTestPoint(m[1] == "ok", m[2])
			return l
		}
		l.kind = unknownLine
	}
	return l
}

func planSkipReason(count int, comment string) string {
	lower := strings.ToLower(comment)
	if strings.HasPrefix(lower, "skip") {
		_, rest := splitWord(comment)
		return rest
	}
	if count == 0 {
		return comment
	}
	return ""
}

func lexTestPoint(ok bool, rest string) TestPoint {
	tp := TestPoint{OK: ok}

	if m := numberPattern.FindStringSubmatch(rest); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			tp.Number = n
			rest = m[2]
		}
	}

	desc, comment, hasComment := splitUnescapedHash(rest)
	desc = strings.TrimLeft(desc, "- \t")
	desc = strings.TrimRight(desc, " \t")

	if hasComment {
		if directive, ok := parseDirective(comment); ok {
			tp.Directive = directive
		} else {
			desc = strings.TrimRight(desc+" # "+strings.TrimSpace(comment), " ")
			desc = strings.TrimPrefix(desc, " ")
		}
	}

	tp.Description = unescape(desc)
	return tp
}

// splitUnescapedHash splits at the first `#` not preceded by a backslash.
func splitUnescapedHash(s string) (string, string, bool) {
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '#':
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func parseDirective(comment string) (Directive, bool) {
	word, rest := splitWord(strings.TrimSpace(comment))
	lower := strings.ToLower(word)
	switch {
	case strings.HasPrefix(lower, "skip"):
		return Directive{Kind: Skip, Reason: rest}, true
	case lower == "todo":
		return Directive{Kind: Todo, Reason: rest}, true
	}
	return Directive{}, false
}

func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '#' || s[i+1] == '\\') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `#`, `\#`).Replace(s)
}
