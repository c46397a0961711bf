package ast

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/CodeAtlas/services/intel/classify"
)

// importRule binds one import-line regex to the import kind it yields.
type importRule struct {
	re   *regexp.Regexp
	kind ImportKind
}

// heuristicSpec drives the line-based parser for one language.
//
// Declaration regexes capture the name in group 1; classRe may capture
// a supertype clause in group 2. indentScoped languages close symbols
// on dedent, the rest on brace balance.
type heuristicSpec struct {
	language     classify.Language
	indentScoped bool

	moduleRe    *regexp.Regexp
	classRe     *regexp.Regexp
	interfaceRe *regexp.Regexp
	funcRe      *regexp.Regexp
	importRules []importRule

	// Go's import blocks span lines; these track block state.
	importBlockStart *regexp.Regexp
	importBlockLine  *regexp.Regexp

	lineComment string
}

var heuristicSpecs = map[classify.Language]*heuristicSpec{
	classify.LangPHP: {
		language:    classify.LangPHP,
		moduleRe:    regexp.MustCompile(`^\s*namespace\s+([\w\\]+)`),
		classRe:     regexp.MustCompile(`^\s*(?:abstract\s+|final\s+)?class\s+(\w+)((?:\s+extends\s+[\w\\]+)?(?:\s+implements\s+[\w\\,\s]+)?)`),
		interfaceRe: regexp.MustCompile(`^\s*interface\s+(\w+)((?:\s+extends\s+[\w\\,\s]+)?)`),
		funcRe:      regexp.MustCompile(`^\s*(?:(?:public|private|protected|static|abstract|final)\s+)*function\s+&?(\w+)`),
		importRules: []importRule{
			{regexp.MustCompile(`^\s*use\s+([\w\\]+)`), ImportKindImport},
			{regexp.MustCompile(`(?:require|include)(?:_once)?\s*\(?\s*['"]([^'"]+)['"]`), ImportKindRequire},
		},
		lineComment: "//",
	},
	classify.LangKotlin: {
		language:    classify.LangKotlin,
		moduleRe:    regexp.MustCompile(`^\s*package\s+([\w.]+)`),
		classRe:     regexp.MustCompile(`^\s*(?:(?:abstract|open|data|sealed|final|internal|private|public|inner|enum|annotation)\s+)*(?:class|object)\s+(\w+)(?:<[^>]*>)?\s*(?:\([^)]*\))?\s*((?::\s*[^{]+)?)`),
		interfaceRe: regexp.MustCompile(`^\s*(?:(?:sealed|internal|private|public|fun)\s+)*interface\s+(\w+)(?:<[^>]*>)?\s*((?::\s*[^{]+)?)`),
		funcRe:      regexp.MustCompile(`^\s*(?:(?:override|private|public|internal|protected|open|abstract|suspend|inline|operator|infix|tailrec)\s+)*fun\s+(?:<[^>]*>\s+)?(?:[\w.<>?]+\.)?(\w+)\s*\(`),
		importRules: []importRule{
			{regexp.MustCompile(`^\s*import\s+([\w.*]+)`), ImportKindImport},
		},
		lineComment: "//",
	},
	classify.LangSwift: {
		language:    classify.LangSwift,
		classRe:     regexp.MustCompile(`^\s*(?:(?:public|private|internal|open|final|fileprivate)\s+)*(?:class|struct|enum|actor)\s+(\w+)((?:\s*:\s*[\w.,\s]+)?)`),
		interfaceRe: regexp.MustCompile(`^\s*(?:(?:public|private|internal)\s+)*protocol\s+(\w+)((?:\s*:\s*[\w.,\s]+)?)`),
		funcRe:      regexp.MustCompile(`^\s*(?:(?:override|public|private|internal|open|fileprivate|static|class|final|mutating)\s+)*func\s+(\w+)`),
		importRules: []importRule{
			{regexp.MustCompile(`^\s*import\s+([\w.]+)`), ImportKindImport},
		},
		lineComment: "//",
	},
	classify.LangGDScript: {
		language:     classify.LangGDScript,
		indentScoped: true,
		moduleRe:     regexp.MustCompile(`^class_name\s+(\w+)`),
		classRe:      regexp.MustCompile(`^\s*class\s+(\w+)((?:\s+extends\s+\w+)?)`),
		funcRe:       regexp.MustCompile(`^\s*(?:static\s+)?func\s+(\w+)`),
		importRules: []importRule{
			{regexp.MustCompile(`(?:preload|load)\(\s*["']([^"']+)["']\s*\)`), ImportKindRequire},
			{regexp.MustCompile(`^extends\s+["']([^"']+)["']`), ImportKindImport},
		},
		lineComment: "#",
	},

	// Fallback specs for the exact languages, used when detection depth
	// forces heuristic parsing.
	classify.LangGo: {
		language: classify.LangGo,
		moduleRe: regexp.MustCompile(`^package\s+(\w+)`),
		classRe:  regexp.MustCompile(`^type\s+(\w+)\s+struct\b()`),
		interfaceRe: regexp.MustCompile(
			`^type\s+(\w+)\s+interface\b()`),
		funcRe: regexp.MustCompile(`^func\s+(?:\([^)]+\)\s+)?(\w+)\s*\(`),
		importRules: []importRule{
			{regexp.MustCompile(`^import\s+(?:\w+\s+)?"([^"]+)"`), ImportKindImport},
		},
		importBlockStart: regexp.MustCompile(`^import\s*\($`),
		importBlockLine:  regexp.MustCompile(`^\s+(?:[\w.]+\s+)?"([^"]+)"`),
		lineComment:      "//",
	},
	classify.LangPython: {
		language:     classify.LangPython,
		indentScoped: true,
		classRe:      regexp.MustCompile(`^\s*class\s+(\w+)((?:\([^)]*\))?)`),
		funcRe:       regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)`),
		importRules: []importRule{
			{regexp.MustCompile(`^\s*import\s+([\w.]+)`), ImportKindImport},
			{regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`), ImportKindImport},
		},
		lineComment: "#",
	},
	classify.LangJavaScript: {
		language: classify.LangJavaScript,
		classRe:  regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?class\s+(\w+)((?:\s+extends\s+[\w.]+)?)`),
		funcRe:   regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)`),
		importRules: []importRule{
			{regexp.MustCompile(`^\s*import\b[^'"]*['"]([^'"]+)['"]`), ImportKindImport},
			{regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`), ImportKindRequire},
		},
		lineComment: "//",
	},
	classify.LangTypeScript: {
		language:    classify.LangTypeScript,
		classRe:     regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)((?:\s+extends\s+[\w.<>,\s]+)?(?:\s+implements\s+[\w.<>,\s]+)?)`),
		interfaceRe: regexp.MustCompile(`^\s*(?:export\s+)?interface\s+(\w+)((?:\s+extends\s+[\w.<>,\s]+)?)`),
		funcRe:      regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*(\w+)`),
		importRules: []importRule{
			{regexp.MustCompile(`^\s*import\b[^'"]*['"]([^'"]+)['"]`), ImportKindImport},
			{regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`), ImportKindRequire},
		},
		lineComment: "//",
	},
	classify.LangRust: {
		language:    classify.LangRust,
		moduleRe:    regexp.MustCompile(`^\s*(?:pub\s+)?mod\s+(\w+)`),
		classRe:     regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum)\s+(\w+)()`),
		interfaceRe: regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?trait\s+(\w+)((?::\s*[\w+\s]+)?)`),
		funcRe:      regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?(?:unsafe\s+)?fn\s+(\w+)`),
		importRules: []importRule{
			{regexp.MustCompile(`^\s*(?:pub\s+)?use\s+([\w:{}*,\s]+?);`), ImportKindImport},
		},
		lineComment: "//",
	},
	classify.LangJava: {
		language:    classify.LangJava,
		moduleRe:    regexp.MustCompile(`^\s*package\s+([\w.]+)`),
		classRe:     regexp.MustCompile(`^\s*(?:(?:public|private|protected|abstract|final|static)\s+)*(?:class|enum|record)\s+(\w+)[^{]*((?:extends\s+[\w.<>]+)?[^{]*(?:implements\s+[\w.,<>\s]+)?)`),
		interfaceRe: regexp.MustCompile(`^\s*(?:(?:public|private|protected)\s+)*interface\s+(\w+)[^{]*((?:extends\s+[\w.,<>\s]+)?)`),
		funcRe:      regexp.MustCompile(`^\s*(?:(?:public|private|protected|static|final|abstract|synchronized|native)\s+)+[\w.<>\[\]]+\s+(\w+)\s*\(`),
		importRules: []importRule{
			{regexp.MustCompile(`^\s*import\s+(?:static\s+)?([\w.*]+)`), ImportKindImport},
		},
		lineComment: "//",
	},
	classify.LangCpp: {
		language: classify.LangCpp,
		moduleRe: regexp.MustCompile(`^\s*namespace\s+(\w+)`),
		classRe:  regexp.MustCompile(`^\s*(?:class|struct)\s+(\w+)((?:\s*:\s*[\w:,\s]+)?)\s*\{?`),
		funcRe:   regexp.MustCompile(`^\s*(?:[\w:<>~&*]+\s+)+([\w~]+)\s*\([^;]*$`),
		importRules: []importRule{
			{regexp.MustCompile(`^\s*#\s*include\s*[<"]([^>"]+)[>"]`), ImportKindInclude},
		},
		lineComment: "//",
	},
	classify.LangCSharp: {
		language:    classify.LangCSharp,
		moduleRe:    regexp.MustCompile(`^\s*namespace\s+([\w.]+)`),
		classRe:     regexp.MustCompile(`^\s*(?:(?:public|private|protected|internal|abstract|sealed|static|partial)\s+)*(?:class|struct|record)\s+(\w+)((?:\s*:\s*[\w.,<>\s]+)?)`),
		interfaceRe: regexp.MustCompile(`^\s*(?:(?:public|private|protected|internal|partial)\s+)*interface\s+(\w+)((?:\s*:\s*[\w.,<>\s]+)?)`),
		funcRe:      regexp.MustCompile(`^\s*(?:(?:public|private|protected|internal|static|virtual|override|abstract|async|sealed)\s+)+[\w.<>\[\]?]+\s+(\w+)\s*\(`),
		importRules: []importRule{
			{regexp.MustCompile(`^\s*using\s+(?:static\s+)?([\w.]+)\s*;`), ImportKindImport},
		},
		lineComment: "//",
	},
	classify.LangRuby: {
		language:     classify.LangRuby,
		indentScoped: false,
		moduleRe:     regexp.MustCompile(`^\s*module\s+([\w:]+)`),
		classRe:      regexp.MustCompile(`^\s*class\s+([\w:]+)((?:\s*<\s*[\w:]+)?)`),
		funcRe:       regexp.MustCompile(`^\s*def\s+(?:self\.)?(\w+[?!=]?)`),
		importRules: []importRule{
			{regexp.MustCompile(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`), ImportKindRequire},
		},
		lineComment: "#",
	},
}

// HeuristicParser extracts a best-effort symbol outline with line
// regexes. It backs the languages without a tree-sitter grammar and
// every language when detection depth is surface.
//
// Thread Safety:
//
//	Safe for concurrent use; parsers hold only immutable spec tables.
type HeuristicParser struct {
	spec        *heuristicSpec
	maxFileSize int64
}

// NewHeuristicParser creates the heuristic parser for a language.
func NewHeuristicParser(lang classify.Language) (*HeuristicParser, error) {
	spec, ok := heuristicSpecs[lang]
	if !ok {
		return nil, fmt.Errorf("%w: no heuristic rules for %s", ErrNoParser, lang)
	}
	return &HeuristicParser{spec: spec, maxFileSize: DefaultMaxFileSize}, nil
}

// Language returns the language this parser handles.
func (p *HeuristicParser) Language() classify.Language {
	return p.spec.language
}

// openScope tracks a symbol whose end line is not yet known.
type openScope struct {
	sym    *Symbol
	depth  int // brace depth at declaration
	indent int // indentation at declaration, for indent-scoped languages
}

// Parse scans the file line by line and extracts a symbol outline.
//
// Heuristic results always report partial status: the scanner can miss
// nested or unusually formatted declarations and never claims an exact
// parse.
func (p *HeuristicParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	_, span := StartParseSpan(ctx, p.spec.language.String(), filePath, len(content))
	defer span.End()

	hash, err := checkContent(content, p.maxFileSize)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		FilePath: filePath,
		Language: p.spec.language.String(),
		Hash:     hash,
		RawSize:  int64(len(content)),
		Symbols:  make([]*Symbol, 0),
		Imports:  make([]Import, 0),
	}

	lines := strings.Split(string(content), "\n")
	var stack []openScope
	braceDepth := 0
	inImportBlock := false

	closeTo := func(keep int, lastLine int) {
		for len(stack) > keep {
			top := stack[len(stack)-1]
			if top.sym.EndLine < lastLine {
				top.sym.EndLine = lastLine
			}
			stack = stack[:len(stack)-1]
		}
	}
	currentOwner := func() string {
		for i := len(stack) - 1; i >= 0; i-- {
			k := stack[i].sym.Kind
			if k == SymbolKindClass || k == SymbolKindInterface {
				return stack[i].sym.QualifiedName
			}
		}
		return ""
	}

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if p.spec.lineComment != "" && strings.HasPrefix(trimmed, p.spec.lineComment) {
			continue
		}

		// Close dedented scopes before reading the line's declarations.
		if p.spec.indentScoped {
			ind := indentOf(line)
			keep := 0
			for keep < len(stack) && stack[keep].indent < ind {
				keep++
			}
			closeTo(keep, lineNo-1)
		}

		if p.spec.importBlockStart != nil {
			if inImportBlock {
				if trimmed == ")" {
					inImportBlock = false
				} else if m := p.spec.importBlockLine.FindStringSubmatch(line); m != nil {
					result.Imports = append(result.Imports, Import{
						Path: m[1],
						Kind: ImportKindImport,
						Location: Location{
							FilePath: filePath, StartLine: lineNo, EndLine: lineNo,
						},
					})
				}
				continue
			}
			if p.spec.importBlockStart.MatchString(line) {
				inImportBlock = true
				continue
			}
		}

		matched := false
		for _, rule := range p.spec.importRules {
			if m := rule.re.FindStringSubmatch(line); m != nil {
				path := strings.TrimSpace(m[1])
				result.Imports = append(result.Imports, Import{
					Path:       path,
					Kind:       rule.kind,
					IsRelative: strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../"),
					Location: Location{
						FilePath: filePath, StartLine: lineNo, EndLine: lineNo,
					},
				})
				matched = true
				break
			}
		}

		if !matched && p.spec.moduleRe != nil && result.Module == "" {
			if m := p.spec.moduleRe.FindStringSubmatch(line); m != nil {
				result.Module = m[1]
				result.Symbols = append(result.Symbols, &Symbol{
					ID:            GenerateID(filePath, lineNo, m[1]),
					Name:          m[1],
					QualifiedName: m[1],
					Kind:          SymbolKindModule,
					FilePath:      filePath,
					StartLine:     lineNo,
					EndLine:       lineNo,
					Signature:     trimmed,
					Language:      p.spec.language.String(),
				})
				matched = true
			}
		}

		if !matched {
			if sym := p.matchDeclaration(line, lineNo, filePath, result, currentOwner()); sym != nil {
				result.Symbols = append(result.Symbols, sym)
				stack = append(stack, openScope{
					sym:    sym,
					depth:  braceDepth,
					indent: indentOf(line),
				})
				matched = true
			}
		}

		if !matched && len(stack) > 0 {
			// Lines inside the innermost function feed call references.
			top := stack[len(stack)-1].sym
			if top.Kind == SymbolKindFunction || top.Kind == SymbolKindMethod {
				for _, callee := range callNamesRe.FindAllStringSubmatch(line, -1) {
					name := calleeName(callee[1])
					if isIdentifier(name) && !heuristicCallKeywords[name] {
						top.References = appendReference(top.References, name)
					}
				}
			}
		}

		if !p.spec.indentScoped {
			braceDepth += strings.Count(line, "{") - strings.Count(line, "}")
			if braceDepth < 0 {
				braceDepth = 0
			}
			keep := 0
			for keep < len(stack) && stack[keep].depth < braceDepth {
				keep++
			}
			// Ruby closes scopes with "end" instead of braces.
			if p.spec.language == classify.LangRuby && trimmed == "end" && len(stack) > 0 {
				closeTo(len(stack)-1, lineNo)
			} else if keep < len(stack) && braceDepth <= stack[keep].depth {
				closeTo(keep, lineNo)
			}
		}
	}
	closeTo(0, len(lines))

	result.Signals = ScanSignals(p.spec.language, content, filePath, result.Symbols)

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("result validation failed: %w", err)
	}
	result.Finalize()
	// Heuristic extraction is an outline, not an exact parse.
	if result.Status == StatusOk {
		result.Status = StatusPartial
	}
	SetParseSpanResult(span, len(result.Symbols), len(result.Errors))
	return result, nil
}

var callNamesRe = regexp.MustCompile(`([\w.:]+)\s*\(`)

var heuristicCallKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "return": true,
	"catch": true, "func": true, "def": true, "fn": true, "function": true,
	"new": true, "super": true, "defer": true, "go": true, "match": true,
	"elif": true, "unless": true, "until": true, "when": true, "init": true,
}

// matchDeclaration tries the class, interface, and function regexes on
// one line and builds the symbol.
func (p *HeuristicParser) matchDeclaration(line string, lineNo int, filePath string, result *ParseResult, owner string) *Symbol {
	build := func(name, heritage string, kind SymbolKind) *Symbol {
		sym := &Symbol{
			ID:            GenerateID(filePath, lineNo, name),
			Name:          name,
			QualifiedName: QualifyName(result.Module, owner, name),
			Kind:          kind,
			FilePath:      filePath,
			StartLine:     lineNo,
			EndLine:       lineNo,
			Owner:         owner,
			Signature:     strings.TrimSpace(line),
			Language:      p.spec.language.String(),
		}
		if heritage != "" {
			for _, token := range identifierTokens(heritage) {
				if !heritageKeywords[token] && token != name {
					sym.Supertypes = append(sym.Supertypes, token)
				}
			}
		}
		if strings.HasPrefix(name, "_") || strings.Contains(line, "private ") {
			sym.Modifiers.Private = true
		}
		if strings.Contains(line, "static ") {
			sym.Modifiers.Static = true
		}
		if strings.Contains(line, "abstract ") || kind == SymbolKindInterface {
			sym.Modifiers.Abstract = true
		}
		return sym
	}

	if p.spec.interfaceRe != nil {
		if m := p.spec.interfaceRe.FindStringSubmatch(line); m != nil {
			return build(m[1], group(m, 2), SymbolKindInterface)
		}
	}
	if p.spec.classRe != nil {
		if m := p.spec.classRe.FindStringSubmatch(line); m != nil {
			return build(m[1], group(m, 2), SymbolKindClass)
		}
	}
	if p.spec.funcRe != nil {
		if m := p.spec.funcRe.FindStringSubmatch(line); m != nil {
			kind := SymbolKindFunction
			if owner != "" {
				kind = SymbolKindMethod
			}
			return build(m[1], "", kind)
		}
	}
	return nil
}

func group(m []string, i int) string {
	if i < len(m) {
		return m[i]
	}
	return ""
}

// indentOf measures leading whitespace, counting tabs as four columns.
func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}
