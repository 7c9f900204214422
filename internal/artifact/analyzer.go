package artifact

import (
	"regexp"
	"strings"
	"unicode"
)

// RawSymbol is a declaration discovered by an Analyzer, before persistence
// assigns ids. Parent names the enclosing declaration's full name, if any.
type RawSymbol struct {
	Type       SymbolType
	Name       string
	FullName   string
	Signature  string
	Docstring  string
	StartLine  int // 1-based
	EndLine    int // 1-based, inclusive
	Visibility string
	Parent     string // full name of the enclosing symbol, "" for top level
}

// Analyzer extracts declarations from source text.
type Analyzer interface {
	Analyze(content string) ([]RawSymbol, error)
}

// Registry maps a language name to the analyzer used for it. Languages
// without an entry are stored without symbol extraction.
type Registry map[string]Analyzer

// DefaultRegistry returns the built-in analyzer set: the structured Go
// analyzer plus line-pattern analyzers for the common scripting languages.
func DefaultRegistry() Registry {
	return Registry{
		"go":         goAnalyzer{},
		"python":     patternAnalyzer{language: "python", patterns: pythonPatterns},
		"javascript": patternAnalyzer{language: "javascript", patterns: jsPatterns},
		"typescript": patternAnalyzer{language: "typescript", patterns: jsPatterns},
		"ruby":       patternAnalyzer{language: "ruby", patterns: rubyPatterns},
	}
}

// linePattern recognises one declaration idiom on a single line.
type linePattern struct {
	symbolType SymbolType
	re         *regexp.Regexp // first capture group is the symbol name
}

var pythonPatterns = []linePattern{
	{SymbolFunction, regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)\s*\(`)},
	{SymbolClass, regexp.MustCompile(`^\s*class\s+(\w+)\s*[:(]`)},
	{SymbolImport, regexp.MustCompile(`^\s*(?:from\s+\S+\s+)?import\s+([\w.]+)`)},
}

var jsPatterns = []linePattern{
	{SymbolFunction, regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)\s*\(`)},
	{SymbolFunction, regexp.MustCompile(`^\s*(?:export\s+)?const\s+(\w+)\s*=\s*(?:async\s*)?\(.*\)\s*=>`)},
	{SymbolClass, regexp.MustCompile(`^\s*(?:export\s+)?class\s+(\w+)`)},
	{SymbolVariable, regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=`)},
	{SymbolImport, regexp.MustCompile(`^\s*import\s+.*from\s+['"]([^'"]+)['"]`)},
}

var rubyPatterns = []linePattern{
	{SymbolFunction, regexp.MustCompile(`^\s*def\s+([\w?!]+)`)},
	{SymbolClass, regexp.MustCompile(`^\s*(?:class|module)\s+(\w+)`)},
	{SymbolImport, regexp.MustCompile(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`)},
}

// patternAnalyzer is the fallback for languages without a structured grammar
// facility: a single-line heuristic over common declaration idioms. It cannot
// see block ends, so start_line == end_line for every symbol — a known
// fidelity limitation.
type patternAnalyzer struct {
	language string
	patterns []linePattern
}

func (a patternAnalyzer) Analyze(content string) ([]RawSymbol, error) {
	var symbols []RawSymbol
	for i, line := range strings.Split(content, "\n") {
		for _, p := range a.patterns {
			match := p.re.FindStringSubmatch(line)
			if match == nil {
				continue
			}
			name := match[1]
			symbols = append(symbols, RawSymbol{
				Type:       p.symbolType,
				Name:       name,
				FullName:   name,
				Signature:  strings.TrimSpace(line),
				StartLine:  i + 1,
				EndLine:    i + 1,
				Visibility: visibilityFor(a.language, name),
			})
			break
		}
	}
	return symbols, nil
}

// visibilityFor applies per-language naming conventions.
func visibilityFor(language, name string) string {
	if name == "" {
		return ""
	}
	switch language {
	case "python", "ruby":
		if strings.HasPrefix(name, "_") {
			return "private"
		}
		return "public"
	case "go":
		if unicode.IsUpper(rune(name[0])) {
			return "public"
		}
		return "private"
	}
	return "public"
}
