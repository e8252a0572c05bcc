package tap

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	maxLineSize  = 1024 * 1024
	subtestDepth = 4
)

// Option configures a Parser.
type Option func(*Parser)

// WithStrict makes every non-TAP line and every protocol violation a ParseError.
func WithStrict(strict bool) Option {
	return func(p *Parser) {
		p.strict = strict
	}
}

// WithLogger sets the logger parser problems are reported to at debug level.
func WithLogger(logger log.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// Parser reads TAP streams. The zero value is not usable, use NewParser.
type Parser struct {
	strict bool
	logger log.Logger
}

// NewParser returns a lenient parser logging to a default logger, unless
// the options say otherwise.
func NewParser(opts ...Option) *Parser {
	p := &Parser{logger: log.NewLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse reads a TAP stream in lenient mode.
func Parse(r io.Reader) (*Document, error) {
	return NewParser().Parse(r)
}

// ParseString ...
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Parse reads the whole stream and returns the parsed document.
// In lenient mode non-TAP output is skipped and recorded in Document.Warnings.
func (p *Parser) Parse(r io.Reader) (*Document, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	s := &state{lines: lines, strict: p.strict, logger: p.logger}
	doc, _, err := s.parseLevel(0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse TAP")
	}
	doc.Warnings = s.warnings
	return doc, nil
}

func readLines(r io.Reader) ([]line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines []line
	for num := 1; scanner.Scan(); num++ {
		lines = append(lines, lex(num, scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read TAP stream after line %d", len(lines))
	}
	return lines, nil
}

type state struct {
	lines    []line
	pos      int
	strict   bool
	logger   log.Logger
	warnings []Warning
}

func (s *state) problem(l line, msg string) error {
	if s.strict {
		return &ParseError{Line: l.num, Text: l.text, Msg: msg}
	}
	s.logger.Debugf("TAP line %d: %s: %s", l.num, msg, l.raw)
	s.warnings = append(s.warnings, Warning{Line: l.num, Msg: msg})
	return nil
}

func (s *state) warn(num int, msg string) {
	s.logger.Debugf("TAP line %d: %s", num, msg)
	s.warnings = append(s.warnings, Warning{Line: num, Msg: msg})
}

// peek returns the index of the next non-blank line, or -1.
func (s *state) peek() int {
	for i := s.pos; i < len(s.lines); i++ {
		if s.lines[i].kind != blankLine {
			return i
		}
	}
	return -1
}

// parseLevel parses the lines indented by at least base spaces. It returns
// the document, and the subtest name when the stream opened with a
// `# Subtest: name` header.
func (s *state) parseLevel(base int) (*Document, string, error) {
	doc := &Document{Version: DefaultVersion}

	var (
		name        string
		comments    []string
		pending     *Subtest
		pendingName string
		seenTAP     bool
	)

	flushPending := func(num int) {
		if pending == nil {
			return
		}
		s.warn(num, "subtest "+strconv.Quote(pending.Name)+" has no parent test point")
		doc.Tests = append(doc.Tests, TestPoint{Description: pending.Name, Comments: comments, Subtest: pending})
		comments, pending = nil, nil
	}

	for s.pos < len(s.lines) {
		l := s.lines[s.pos]
		if l.kind == blankLine {
			s.pos++
			continue
		}
		if l.indent < base {
			break
		}

		if l.indent >= base+subtestDepth {
			flushPending(l.num)

			child, childName, err := s.parseLevel(base + subtestDepth)
			if err != nil {
				return nil, "", err
			}
			if isNoise(child) {
				s.warn(l.num, "ignoring indented non-TAP output")
				continue
			}
			if childName == "" {
				childName = pendingName
			}
			pendingName = ""
			pending = &Subtest{Name: childName, Document: child}
			seenTAP = true

			if child.Bail != nil {
				doc.Tests = append(doc.Tests, TestPoint{Description: pending.Name, Comments: comments, Subtest: pending})
				doc.Bail = &BailOut{Reason: child.Bail.Reason}
				return doc, name, nil
			}
			continue
		}

		s.pos++

		switch l.kind {
		case versionLine:
			if seenTAP || doc.Version != DefaultVersion || len(doc.Pragmas) > 0 {
				if err := s.problem(l, "version line must come first"); err != nil {
					return nil, "", err
				}
				continue
			}
			doc.Version = l.version
		case pragmaLine:
			doc.Pragmas = append(doc.Pragmas, l.pragma)
			if l.pragma.Key == "strict" {
				s.strict = l.pragma.Enabled
			}
		case planLine:
			if l.planTooLarge {
				if err := s.problem(l, "plan exceeds "+strconv.Itoa(MaxPlanCount)+" tests"); err != nil {
					return nil, "", err
				}
				continue
			}
			if doc.Plan != nil {
				if err := s.problem(l, "more than one plan"); err != nil {
					return nil, "", err
				}
				continue
			}
			plan := l.plan
			plan.Trailing = len(doc.Tests) > 0
			doc.Plan = &plan
			seenTAP = true
		case testLine:
			tp := l.test
			tp.Comments, comments = comments, nil
			tp.Subtest, pending = pending, nil

			diag, err := s.readDiagnostic(base)
			if err != nil {
				return nil, "", err
			}
			tp.Diagnostic = diag

			doc.Tests = append(doc.Tests, tp)
			seenTAP = true
		case bailLine:
			flushPending(l.num)
			bail := l.bail
			doc.Bail = &bail
			doc.Comments = comments
			return doc, name, nil
		case commentLine:
			if l.isSubtest {
				if next := s.peek(); next >= 0 && s.lines[next].indent >= base+subtestDepth {
					pendingName = l.subtest
					continue
				}
				if base > 0 && !seenTAP && name == "" && len(comments) == 0 {
					name = l.subtest
					continue
				}
			}
			comments = append(comments, l.comment)
		case yamlStartLine, yamlEndLine:
			if err := s.problem(l, "YAML block without a test point"); err != nil {
				return nil, "", err
			}
		default:
			if err := s.problem(l, "ignoring non-TAP line"); err != nil {
				return nil, "", err
			}
		}
	}

	if pending != nil {
		num := 0
		if s.pos > 0 {
			num = s.lines[s.pos-1].num
		}
		flushPending(num)
	}
	doc.Comments = comments

	return doc, name, nil
}

func isNoise(doc *Document) bool {
	return doc.Version == DefaultVersion && doc.Plan == nil && len(doc.Tests) == 0 && doc.Bail == nil && len(doc.Pragmas) == 0
}

// readDiagnostic consumes the YAML block following a test point, if any.
func (s *state) readDiagnostic(base int) (map[string]interface{}, error) {
	next := s.peek()
	if next < 0 {
		return nil, nil
	}
	start := s.lines[next]
	if start.kind != yamlStartLine || start.indent <= base {
		return nil, nil
	}
	s.pos = next + 1

	var body []string
	terminated := false
	for s.pos < len(s.lines) {
		l := s.lines[s.pos]
		if l.kind != blankLine && l.indent < start.indent {
			break
		}
		s.pos++
		if l.kind == yamlEndLine && l.indent == start.indent {
			terminated = true
			break
		}
		body = append(body, dedent(l.raw, start.indent))
	}
	if !terminated {
		if err := s.problem(start, "unterminated YAML block"); err != nil {
			return nil, err
		}
	}

	text := strings.Join(body, "\n")
	diag, err := decodeDiagnostic(text)
	if err != nil {
		if perr := s.problem(start, "invalid YAML block: "+err.Error()); perr != nil {
			return nil, perr
		}
		return map[string]interface{}{"raw": text}, nil
	}
	return diag, nil
}

func decodeDiagnostic(text string) (map[string]interface{}, error) {
	var v interface{}
	if err := yaml.NewDecoder(bytes.NewBufferString(text)).Decode(&v); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	switch typed := v.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return typed, nil
	default:
		return map[string]interface{}{"data": typed}, nil
	}
}

func dedent(s string, width int) string {
	for width > 0 && s != "" {
		switch s[0] {
		case ' ':
			width--
		case '\t':
			width -= tabWidth
		default:
			return s
		}
		s = s[1:]
	}
	return s
}
