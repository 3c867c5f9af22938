// Package svlang is a deliberately small SystemVerilog front end: enough
// preprocessing and module scanning to produce the diagnostics and symbol
// trees the harness's own tests exercise, without the real slang compiler.
package svlang

import (
	"regexp"
	"strings"
)

// Position is a zero-based line/character pair.
type Position struct {
	Line      int
	Character int
}

// Range is a half-open text region.
type Range struct {
	Start Position
	End   Position
}

// DiagnosticSeverity mirrors the LSP severity scale.
type DiagnosticSeverity int

const (
	SeverityError DiagnosticSeverity = iota + 1
	SeverityWarning
	SeverityInfo
	SeverityHint
)

// Diagnostic is one analysis finding.
type Diagnostic struct {
	Range    Range
	Severity DiagnosticSeverity
	Message  string
}

// SymbolKind classifies a symbol tree node.
type SymbolKind int

const (
	KindModule SymbolKind = iota
	KindConstant
	KindVariable
)

// Symbol is one node of the document symbol tree. Macro definitions appear
// as constants, data declarations as variables nested under their module.
type Symbol struct {
	Name     string
	Kind     SymbolKind
	Range    Range
	Children []Symbol
}

// Analysis is the result of scanning one document.
type Analysis struct {
	Symbols     []Symbol
	Diagnostics []Diagnostic
}

// macro is a preprocessor definition. Body lines are kept separately so a
// multi-line (continuation) body expands one directive per line.
type macro struct {
	params []string
	body   []string
}

var (
	moduleRe = regexp.MustCompile(`^\s*module\s+(\w+)`)
	varRe    = regexp.MustCompile(`^\s*(?:logic|wire|reg|bit|byte|shortint|int|longint|integer|time|real)\s+(\w+)`)
	macroRe  = regexp.MustCompile("^\\s*`(\\w+)\\s*(\\((.*)\\))?\\s*$")
)

type scanner struct {
	defines map[string]macro
	cond    []bool

	symbols     []Symbol
	diagnostics []Diagnostic

	// openModule is the module currently being scanned, if any.
	openModule *Symbol
	// headerOpen is set while the current module header still lacks its
	// terminating semicolon.
	headerOpen bool
	moduleLine int
}

// Analyze scans a document and returns its symbol tree and diagnostics.
func Analyze(text string) *Analysis {
	s := &scanner{defines: make(map[string]macro)}
	s.scan(splitLogicalLines(text), 0)
	s.closeModule(strings.Count(text, "\n"))

	return &Analysis{Symbols: s.symbols, Diagnostics: s.diagnostics}
}

// logicalLine is a source line with its original line number, so expansion
// output can still point at the invocation site.
type logicalLine struct {
	text string
	line int
}

func splitLogicalLines(text string) []logicalLine {
	raw := strings.Split(text, "\n")
	lines := make([]logicalLine, len(raw))
	for i, l := range raw {
		lines[i] = logicalLine{text: l, line: i}
	}
	return lines
}

func (s *scanner) active() bool {
	for _, c := range s.cond {
		if !c {
			return false
		}
	}
	return true
}

func (s *scanner) scan(lines []logicalLine, depth int) {
	// A runaway recursive macro would otherwise loop forever.
	if depth > 16 {
		return
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line.text)

		if strings.HasPrefix(trimmed, "`") {
			i = s.directive(lines, i, depth)
			continue
		}

		if !s.active() {
			continue
		}

		if m := moduleRe.FindStringSubmatch(line.text); m != nil {
			s.closeModule(line.line)
			s.openModule = &Symbol{
				Name:  m[1],
				Kind:  KindModule,
				Range: lineRange(line.line, line.text),
			}
			s.headerOpen = !strings.Contains(line.text, ";")
			s.moduleLine = line.line
			continue
		}

		if strings.Contains(trimmed, "endmodule") {
			if s.headerOpen {
				s.diagnostics = append(s.diagnostics, Diagnostic{
					Range:    lineRange(s.moduleLine, ""),
					Severity: SeverityError,
					Message:  "expected ';' at end of module header",
				})
				s.headerOpen = false
			}
			s.closeModule(line.line)
			continue
		}

		if s.headerOpen && strings.Contains(line.text, ";") {
			s.headerOpen = false
			continue
		}

		if m := varRe.FindStringSubmatch(line.text); m != nil && s.openModule != nil && !s.headerOpen {
			s.openModule.Children = append(s.openModule.Children, Symbol{
				Name:  m[1],
				Kind:  KindVariable,
				Range: lineRange(line.line, line.text),
			})
		}
	}
}

// directive handles one preprocessor line starting at lines[i] and returns
// the index of the last line it consumed.
func (s *scanner) directive(lines []logicalLine, i, depth int) int {
	line := lines[i]
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line.text), "\\"))

	fields := strings.Fields(strings.TrimPrefix(trimmed, "`"))
	if len(fields) == 0 {
		return i
	}

	switch fields[0] {
	case "define":
		return s.define(lines, i, trimmed)
	case "ifdef":
		_, defined := s.defines[arg(fields)]
		s.cond = append(s.cond, defined)
	case "ifndef":
		_, defined := s.defines[arg(fields)]
		s.cond = append(s.cond, !defined)
	case "else":
		if n := len(s.cond); n > 0 {
			s.cond[n-1] = !s.cond[n-1]
		}
	case "endif":
		if n := len(s.cond); n > 0 {
			s.cond = s.cond[:n-1]
		}
	default:
		// Macro invocation: expand and rescan the substituted body.
		if !s.active() {
			return i
		}
		m := macroRe.FindStringSubmatch(strings.TrimSpace(line.text))
		if m == nil {
			return i
		}
		def, ok := s.defines[m[1]]
		if !ok {
			return i
		}
		s.expand(def, splitArgs(m[3]), line.line, depth)
	}
	return i
}

// define records a macro. Lines ending in backslash continue the body; the
// directive's own line may already carry the first body fragment.
func (s *scanner) define(lines []logicalLine, i int, trimmed string) int {
	line := lines[i]

	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(trimmed, "`define"), " "))
	name, params, tail := parseDefineHead(rest)
	if name == "" {
		return i
	}

	var body []string
	if tail != "" {
		body = append(body, tail)
	}
	last := i
	for continued(lines[last].text) && last+1 < len(lines) {
		last++
		body = append(body, strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(lines[last].text), "\\")))
	}

	if s.active() {
		s.defines[name] = macro{params: params, body: body}
		s.addSymbol(Symbol{
			Name:  name,
			Kind:  KindConstant,
			Range: lineRange(line.line, line.text),
		})
	}
	return last
}

// expand substitutes arguments into the macro body and rescans it, so
// expansion-produced defines and declarations land in the symbol tree.
func (s *scanner) expand(def macro, args []string, atLine, depth int) {
	expanded := make([]logicalLine, 0, len(def.body))
	for _, bodyLine := range def.body {
		for pi, p := range def.params {
			val := ""
			if pi < len(args) {
				val = args[pi]
			}
			bodyLine = strings.ReplaceAll(bodyLine, p, val)
		}
		expanded = append(expanded, logicalLine{text: bodyLine, line: atLine})
	}
	s.scan(expanded, depth+1)
}

func (s *scanner) addSymbol(sym Symbol) {
	if s.openModule != nil {
		s.openModule.Children = append(s.openModule.Children, sym)
	} else {
		s.symbols = append(s.symbols, sym)
	}
}

func (s *scanner) closeModule(endLine int) {
	if s.openModule == nil {
		return
	}
	s.openModule.Range.End = Position{Line: endLine, Character: 0}
	s.symbols = append(s.symbols, *s.openModule)
	s.openModule = nil
	s.headerOpen = false
}

// parseDefineHead splits "NAME(p1, p2=) rest" into the macro name, its
// parameter names (defaults stripped), and whatever followed on the same
// line.
func parseDefineHead(rest string) (name string, params []string, tail string) {
	end := 0
	for end < len(rest) && isIdentChar(rest[end]) {
		end++
	}
	if end == 0 {
		return "", nil, ""
	}
	name = rest[:end]
	rest = rest[end:]

	if strings.HasPrefix(rest, "(") {
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return name, nil, ""
		}
		for _, p := range strings.Split(rest[1:end], ",") {
			p = strings.TrimSpace(p)
			if eq := strings.IndexByte(p, '='); eq >= 0 {
				p = strings.TrimSpace(p[:eq])
			}
			if p != "" {
				params = append(params, p)
			}
		}
		rest = rest[end+1:]
	}
	return name, params, strings.TrimSpace(rest)
}

func splitArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	args := make([]string, len(parts))
	for i, p := range parts {
		args[i] = strings.TrimSpace(p)
	}
	return args
}

func arg(fields []string) string {
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func continued(line string) bool {
	return strings.HasSuffix(strings.TrimSpace(line), "\\")
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func lineRange(line int, text string) Range {
	return Range{
		Start: Position{Line: line},
		End:   Position{Line: line, Character: len(strings.TrimRight(text, " \t"))},
	}
}
