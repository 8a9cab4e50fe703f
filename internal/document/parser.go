package document

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"plcaudit/internal/logging"
)

// ParseError reports a malformed export document. It is fatal: no
// partial document is ever returned alongside one.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Element tag fragments recognized per kind. Vendors disagree on exact
// tag names, so matching is by substring like the exports themselves.
var kindTags = []struct {
	kind      BlockKind
	fragments []string
}{
	{KindRoutine, []string{"FunctionBlock", "Program", "POU"}},
	{KindType, []string{"DataType", "TypeDef"}},
	{KindVariable, []string{"GlobalVariable", "Variable"}},
}

// Reference patterns over the embedded Structured Text.
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\w+)\.`),           // qualified access
	regexp.MustCompile(`(?i)\b(FB_\w+)`),        // function block instances
	regexp.MustCompile(`(?i)GVL\.(\w+)`),        // global variable lists
	regexp.MustCompile(`(?i)TYPE\s+(\w+)`),      // type references
	regexp.MustCompile(`(?i)VAR_GLOBAL\s+(\w+)`),
}

// stKeywords are IEC structured-text keywords excluded from references.
var stKeywords = map[string]bool{
	"VAR": true, "END_VAR": true, "TYPE": true, "END_TYPE": true,
	"FUNCTION_BLOCK": true, "END_FUNCTION_BLOCK": true,
	"PROGRAM": true, "END_PROGRAM": true,
	"IF": true, "THEN": true, "ELSE": true, "ELSIF": true, "END_IF": true,
	"FOR": true, "TO": true, "DO": true, "END_FOR": true,
	"WHILE": true, "END_WHILE": true, "CASE": true, "END_CASE": true,
	"TRUE": true, "FALSE": true, "AND": true, "OR": true, "NOT": true, "XOR": true,
}

// tokensPerLine is the rough per-line token cost used for shard budgeting.
const tokensPerLine = 18

// ParseFile reads and parses a PLC export.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	doc, err := Parse(string(data))
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = path
			return nil, pe
		}
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Parse parses export content into a Document. A malformed document
// yields a ParseError and no Document.
func Parse(content string) (*Document, error) {
	timer := logging.StartTimer(logging.CategoryParse, "Parse")
	defer timer.StopWithInfo()

	lines := strings.Split(content, "\n")

	names, err := scanElements(content)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	doc := &Document{
		Lines:  lines,
		byName: make(map[string]*Block),
	}

	for _, el := range names {
		if _, dup := doc.byName[el.name]; dup {
			continue
		}
		start, end := findElementLines(el.name, lines)
		if start == 0 {
			logging.ParseDebug("element %s not located in source text, skipping", el.name)
			continue
		}
		body := strings.Join(lines[start-1:end], "\n")
		b := &Block{
			Name:       el.name,
			Kind:       el.kind,
			Range:      LineRange{Start: start, End: end},
			Content:    body,
			References: extractReferences(el.name, body),
			TokenCount: estimateTokens(body),
		}
		doc.Blocks = append(doc.Blocks, b)
		doc.byName[el.name] = b
	}

	sort.SliceStable(doc.Blocks, func(i, j int) bool {
		return doc.Blocks[i].Range.Start < doc.Blocks[j].Range.Start
	})
	doc.buildGraph()

	logging.Parse("parsed document: %d lines, %d blocks", len(lines), len(doc.Blocks))
	return doc, nil
}

type scannedElement struct {
	name string
	kind BlockKind
}

// scanElements walks the XML token stream and collects named elements of
// recognized kinds. Any XML syntax error aborts the scan.
func scanElements(content string) ([]scannedElement, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var out []scannedElement

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed XML: %w", err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		kind, recognized := classifyTag(se.Name.Local)
		if !recognized {
			continue
		}
		if name := elementName(se); name != "" {
			out = append(out, scannedElement{name: name, kind: kind})
		}
	}
	return out, nil
}

// classifyTag maps an element tag to a block kind by substring.
// Routine tags are checked first so "FunctionBlockVariable" style tags
// do not land in the variable bucket.
func classifyTag(tag string) (BlockKind, bool) {
	for _, kt := range kindTags {
		for _, frag := range kt.fragments {
			if strings.Contains(tag, frag) {
				return kt.kind, true
			}
		}
	}
	return "", false
}

// elementName extracts the element's name attribute, trying the
// attribute spellings seen across vendor exports.
func elementName(se xml.StartElement) string {
	for _, attr := range se.Attr {
		switch attr.Name.Local {
		case "Name", "name", "id", "Id":
			return strings.TrimSpace(attr.Value)
		}
	}
	return ""
}

// findElementLines locates the 1-based inclusive line range of a named
// element by scanning the raw source: the declaration line carries the
// name attribute, the end is found by tag-nesting balance.
func findElementLines(name string, lines []string) (int, int) {
	start := 0
	for i, line := range lines {
		if strings.Contains(line, name) &&
			(strings.Contains(line, "Name=") || strings.Contains(line, "name=")) {
			start = i + 1
			break
		}
	}
	if start == 0 {
		return 0, 0
	}

	depth := 0
	inElement := false
	for i := start - 1; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "<!--") {
			continue
		}
		if strings.Contains(line, "<") {
			// Opening tags add depth, closing and self-closing tags
			// cancel theirs: net = "<" - 2*"</" - "/>".
			depth += strings.Count(line, "<") - 2*strings.Count(line, "</") - strings.Count(line, "/>")
			inElement = true
		}
		if inElement && depth <= 0 {
			return start, i + 1
		}
	}

	// Unterminated element: cap at a fixed window like truncated exports.
	end := start + 50
	if end > len(lines) {
		end = len(lines)
	}
	return start, end
}

// extractReferences pulls referenced names out of a block body.
func extractReferences(self, content string) []string {
	set := make(map[string]bool)
	for _, re := range referencePatterns {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			for _, group := range m[1:] {
				group = strings.TrimSpace(group)
				if len(group) <= 1 || group == self {
					continue
				}
				if stKeywords[strings.ToUpper(group)] {
					continue
				}
				// Numeric literals match the qualified-access pattern
				// (e.g. "80.0"); they are not names.
				if isNumeric(group) {
					continue
				}
				set[group] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// estimateTokens approximates the request cost of a block body.
func estimateTokens(content string) int {
	n := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n * tokensPerLine
}
