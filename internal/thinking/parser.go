// Package thinking classifies the analyst's free-text reasoning into typed
// segments for structured display. The input is unstructured model output
// mixing prose with ad hoc notation, so every rule is best-effort: nothing
// here ever fails, and an unclassifiable line degrades to plain text.
package thinking

import (
	"regexp"
	"strings"
)

type Kind string

const (
	KindHeader    Kind = "header"
	KindExtension Kind = "extension"
	KindParameter Kind = "parameter"
	KindEquation  Kind = "equation"
	KindTable     Kind = "table"
	KindText      Kind = "text"
)

// Segment is one classified run of the thinking block. Which fields are set
// depends on Kind: Text for header titles, equations and prose; Label/Value
// for parameters; ID/Name/Status/Detail for extensions; Rows for tables,
// with the first row being the header row.
type Segment struct {
	Kind   Kind
	Text   string
	Label  string
	Value  string
	ID     string
	Name   string
	Status string
	Detail string
	Rows   [][]string
}

var (
	headerRe    = regexp.MustCompile(`^(=+)\s*(.*?)\s*(=+)$`)
	extensionRe = regexp.MustCompile(`(?i)^\[?EXTENSION\]?\s+(EXT-\w+|[IVXLCDM]+)\s*:\s*(.+?)\s*[—–-]+\s*(ACTIVE|LIKELY|POSSIBLE|PRIMARY|SECONDARY|INACTIVE|MONITORING)\s*$`)
	parameterRe = regexp.MustCompile(`^([A-Za-z][A-Za-z ]*?)\s*:\s*(.+)$`)
	subscriptRe = regexp.MustCompile(`\b[A-Za-z]_[A-Za-z0-9]+\s*=`)
	callRe      = regexp.MustCompile(`[A-Za-z]\w*\([^)]*\)`)
	exponentRe  = regexp.MustCompile(`\^[{\w]`)
	whereRe     = regexp.MustCompile(`^(Where|His|Her)\s`)
	keyLineRe   = regexp.MustCompile(`^Key\s*:`)
)

const mathGlyphs = "×·∂→∈≥≤−"

// Parse runs the single left-to-right line scan. Later lines can be absorbed
// into an earlier segment (extension detail, parameter continuations, table
// rows); precedence between rules is fixed here, not regex-ordering luck:
// header, extension, equation, parameter, table, Where-clause, text.
func Parse(block string) []Segment {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	var segments []Segment

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		if title, ok := matchHeader(line); ok {
			segments = append(segments, Segment{Kind: KindHeader, Text: title})
			continue
		}

		if seg, ok := matchExtension(line); ok {
			var detail []string
			for i+1 < len(lines) {
				next := strings.TrimSpace(lines[i+1])
				if endsExtensionDetail(next) {
					break
				}
				detail = append(detail, next)
				i++
			}
			seg.Detail = strings.Join(detail, "\n")
			segments = append(segments, seg)
			continue
		}

		if isEquation(line) {
			segments = append(segments, Segment{Kind: KindEquation, Text: line})
			continue
		}

		if label, value, ok := matchParameter(line); ok {
			for i+1 < len(lines) {
				next := strings.TrimSpace(lines[i+1])
				if !strings.HasPrefix(next, "-") && !strings.HasPrefix(next, "•") {
					break
				}
				value += "\n" + next
				i++
			}
			segments = append(segments, Segment{Kind: KindParameter, Label: label, Value: value})
			continue
		}

		if strings.HasPrefix(line, "|") && strings.Count(line, "|") > 1 {
			rows := [][]string{splitTableRow(line)}
			for i+1 < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i+1]), "|") {
				rows = append(rows, splitTableRow(strings.TrimSpace(lines[i+1])))
				i++
			}
			segments = append(segments, Segment{Kind: KindTable, Rows: dropSeparatorRows(rows)})
			continue
		}

		if whereRe.MatchString(line) && strings.HasPrefix(line, "Where") {
			segments = append(segments, Segment{Kind: KindEquation, Text: line})
			continue
		}

		segments = append(segments, Segment{Kind: KindText, Text: line})
	}

	return segments
}

func matchHeader(line string) (string, bool) {
	if !strings.HasPrefix(line, "=") || !strings.HasSuffix(line, "=") {
		return "", false
	}
	m := headerRe.FindStringSubmatch(line)
	if m == nil || len(m[1]) < 2 || len(m[3]) < 2 || m[2] == "" {
		return "", false
	}
	return m[2], true
}

func matchExtension(line string) (Segment, bool) {
	m := extensionRe.FindStringSubmatch(line)
	if m == nil {
		return Segment{}, false
	}
	id := strings.ToUpper(m[1])
	if !strings.HasPrefix(id, "EXT-") {
		id = "EXT-" + id
	}
	return Segment{
		Kind:   KindExtension,
		ID:     id,
		Name:   strings.TrimSpace(m[2]),
		Status: strings.ToUpper(m[3]),
	}, true
}

// endsExtensionDetail reports whether a line terminates the absorption of
// free text into the preceding extension segment.
func endsExtensionDetail(line string) bool {
	if line == "" {
		return true
	}
	if _, ok := matchHeader(line); ok {
		return true
	}
	if extensionRe.MatchString(line) {
		return true
	}
	if keyLineRe.MatchString(line) {
		return true
	}
	return whereRe.MatchString(line)
}

// isEquation is checked before the parameter rule so equations containing
// colons are not misclassified as labeled parameters.
func isEquation(line string) bool {
	if !strings.Contains(line, "=") {
		return false
	}
	if strings.ContainsAny(line, mathGlyphs) {
		return true
	}
	for _, r := range line {
		if (r >= 'Α' && r <= 'Ω') || (r >= 'α' && r <= 'ω') {
			return true
		}
	}
	if subscriptRe.MatchString(line) || exponentRe.MatchString(line) {
		return true
	}
	return callRe.MatchString(line)
}

func matchParameter(line string) (label, value string, ok bool) {
	m := parameterRe.FindStringSubmatch(line)
	if m == nil || strings.Contains(m[1], "===") {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

func splitTableRow(line string) []string {
	trimmed := strings.Trim(line, "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

// dropSeparatorRows removes markdown alignment rows (cells made entirely of
// '-' and ':') so the first remaining row can render as the header.
func dropSeparatorRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		if !isSeparatorRow(row) {
			out = append(out, row)
		}
	}
	return out
}

func isSeparatorRow(row []string) bool {
	any := false
	for _, cell := range row {
		if cell == "" {
			continue
		}
		any = true
		if strings.Trim(cell, "-:") != "" {
			return false
		}
	}
	return any
}
