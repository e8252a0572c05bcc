package tap

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	encodedVersion = 14
	diagnosticPad  = "  "
	subtestPad     = "    "
)

// Encoder writes TAP 14 streams.
type Encoder struct {
	w io.Writer
}

// NewEncoder ...
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the whole document. Nothing is written when the document
// can not be serialized.
func (e *Encoder) Encode(doc *Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	_, err = e.w.Write(data)
	return err
}

// Marshal returns the TAP 14 text of the document.
func Marshal(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("nil document")
	}
	var buf bytes.Buffer
	if _, err := writeDocument(&buf, doc, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeDocument reports whether a bail out was written, in which case the
// enclosing documents must not write anything more.
func writeDocument(buf *bytes.Buffer, doc *Document, indent string) (bool, error) {
	if doc.Version >= 13 {
		writeLine(buf, indent, "TAP version "+strconv.Itoa(encodedVersion))
	}
	for _, pragma := range doc.Pragmas {
		sign := "-"
		if pragma.Enabled {
			sign = "+"
		}
		writeLine(buf, indent, "pragma "+sign+pragma.Key)
	}
	planWritten := false
	writePlan := func() {
		if doc.Plan != nil && !planWritten {
			writeLine(buf, indent, planText(*doc.Plan))
			planWritten = true
		}
	}
	if doc.Plan != nil && !doc.Plan.Trailing {
		writePlan()
	}

	for _, tp := range doc.Tests {
		// nothing is read after a bail out, a trailing plan goes before it
		if tp.Subtest != nil && tp.Subtest.Document != nil && tp.Subtest.Document.Bail != nil {
			writePlan()
		}
		writeComments(buf, indent, tp.Comments)

		if tp.Subtest != nil && tp.Subtest.Document != nil {
			if tp.Subtest.Name != "" {
				writeLine(buf, indent, "# Subtest: "+tp.Subtest.Name)
			}
			bailed, err := writeDocument(buf, tp.Subtest.Document, indent+subtestPad)
			if err != nil {
				return false, err
			}
			if bailed {
				return true, nil
			}
		}

		writeLine(buf, indent, testPointText(tp))
		if err := writeDiagnostic(buf, indent+diagnosticPad, tp.Diagnostic); err != nil {
			return false, errors.Wrapf(err, "failed to encode diagnostic of test %q", tp.Description)
		}
	}

	writeComments(buf, indent, doc.Comments)

	writePlan()
	if doc.Bail != nil {
		writeLine(buf, indent, strings.TrimRight("Bail out! "+doc.Bail.Reason, " "))
		return true, nil
	}
	return false, nil
}

func planText(plan Plan) string {
	text := "1.." + strconv.Itoa(plan.Count)
	if plan.SkipReason != "" {
		text += " # SKIP " + plan.SkipReason
	} else if plan.Count == 0 {
		text += " # SKIP"
	}
	return text
}

func testPointText(tp TestPoint) string {
	var b strings.Builder
	if tp.OK {
		b.WriteString("ok")
	} else {
		b.WriteString("not ok")
	}
	if tp.Number > 0 {
		b.WriteString(" ")
		b.WriteString(strconv.Itoa(tp.Number))
	}
	if tp.Description != "" {
		b.WriteString(" - ")
		b.WriteString(escape(tp.Description))
	}
	if tp.Directive.Kind != NoDirective {
		b.WriteString(" # ")
		b.WriteString(tp.Directive.Kind.String())
		if tp.Directive.Reason != "" {
			b.WriteString(" ")
			b.WriteString(tp.Directive.Reason)
		}
	}
	return b.String()
}

func writeComments(buf *bytes.Buffer, indent string, comments []string) {
	for _, comment := range comments {
		if comment == "" {
			writeLine(buf, indent, "#")
			continue
		}
		writeLine(buf, indent, "# "+comment)
	}
}

func writeDiagnostic(buf *bytes.Buffer, indent string, diag map[string]interface{}) error {
	if len(diag) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := yaml.NewEncoder(&body)
	enc.SetIndent(2)
	if err := enc.Encode(diag); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	writeLine(buf, indent, "---")
	for _, l := range strings.Split(strings.TrimRight(body.String(), "\n"), "\n") {
		writeLine(buf, indent, l)
	}
	writeLine(buf, indent, "...")
	return nil
}

func writeLine(buf *bytes.Buffer, indent, text string) {
	if text != "" {
		buf.WriteString(indent)
		buf.WriteString(text)
	}
	buf.WriteByte('\n')
}
