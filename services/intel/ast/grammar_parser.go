package ast

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/AleutianAI/CodeAtlas/services/intel/classify"
)

// grammarSpec is one language's entry in the tagged-variant parser
// table. Instead of a hand-written parser per language, the languages
// beyond Go and Python share a single tree walker driven by these
// per-language node-kind tables.
type grammarSpec struct {
	language   classify.Language
	sitterLang *sitter.Language

	// Node kinds, by the symbol kind they produce.
	moduleKinds    map[string]bool
	classKinds     map[string]bool
	interfaceKinds map[string]bool
	functionKinds  map[string]bool
	methodKinds    map[string]bool

	// bodyKinds are container nodes whose function children are
	// methods of the enclosing class.
	bodyKinds map[string]bool

	// heritageKinds are nodes carrying extends/implements clauses.
	heritageKinds map[string]bool

	// Call reference extraction.
	callKinds    map[string]bool
	calleeFields []string

	// Import extraction.
	importKinds map[string]bool
	importKind  ImportKind

	// importLineRe, when set, replaces node-based import extraction
	// with a line scan (languages where imports are ordinary calls,
	// like Ruby's require).
	importLineRe *regexp.Regexp
}

func kinds(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// grammarSpecs is the parser table for the tree-sitter languages that
// share the generic walker.
var grammarSpecs = map[classify.Language]*grammarSpec{
	classify.LangJavaScript: {
		language:      classify.LangJavaScript,
		sitterLang:    javascript.GetLanguage(),
		classKinds:    kinds("class_declaration"),
		functionKinds: kinds("function_declaration", "generator_function_declaration"),
		methodKinds:   kinds("method_definition"),
		bodyKinds:     kinds("class_body"),
		heritageKinds: kinds("class_heritage"),
		callKinds:     kinds("call_expression", "new_expression"),
		calleeFields:  []string{"function", "constructor"},
		importKinds:   kinds("import_statement"),
		importKind:    ImportKindImport,
	},
	classify.LangTypeScript: {
		language:       classify.LangTypeScript,
		sitterLang:     typescript.GetLanguage(),
		classKinds:     kinds("class_declaration", "abstract_class_declaration"),
		interfaceKinds: kinds("interface_declaration"),
		functionKinds:  kinds("function_declaration", "generator_function_declaration"),
		methodKinds:    kinds("method_definition", "abstract_method_signature"),
		bodyKinds:      kinds("class_body"),
		heritageKinds:  kinds("class_heritage", "extends_clause", "implements_clause", "extends_type_clause"),
		callKinds:      kinds("call_expression", "new_expression"),
		calleeFields:   []string{"function", "constructor"},
		importKinds:    kinds("import_statement"),
		importKind:     ImportKindImport,
	},
	classify.LangRust: {
		language:       classify.LangRust,
		sitterLang:     rust.GetLanguage(),
		moduleKinds:    kinds("mod_item"),
		classKinds:     kinds("struct_item", "enum_item"),
		interfaceKinds: kinds("trait_item"),
		functionKinds:  kinds("function_item"),
		methodKinds:    kinds("function_signature_item"),
		bodyKinds:      kinds("declaration_list"),
		heritageKinds:  kinds("trait_bounds"),
		callKinds:      kinds("call_expression", "macro_invocation"),
		calleeFields:   []string{"function", "macro"},
		importKinds:    kinds("use_declaration"),
		importKind:     ImportKindImport,
	},
	classify.LangJava: {
		language:       classify.LangJava,
		sitterLang:     java.GetLanguage(),
		moduleKinds:    kinds("package_declaration"),
		classKinds:     kinds("class_declaration", "enum_declaration", "record_declaration"),
		interfaceKinds: kinds("interface_declaration"),
		methodKinds:    kinds("method_declaration", "constructor_declaration"),
		bodyKinds:      kinds("class_body", "interface_body", "enum_body"),
		heritageKinds:  kinds("superclass", "super_interfaces", "extends_interfaces"),
		callKinds:      kinds("method_invocation", "object_creation_expression"),
		calleeFields:   []string{"name", "type"},
		importKinds:    kinds("import_declaration"),
		importKind:     ImportKindImport,
	},
	classify.LangCpp: {
		language:      classify.LangCpp,
		sitterLang:    cpp.GetLanguage(),
		moduleKinds:   kinds("namespace_definition"),
		classKinds:    kinds("class_specifier", "struct_specifier"),
		functionKinds: kinds("function_definition"),
		bodyKinds:     kinds("field_declaration_list"),
		heritageKinds: kinds("base_class_clause"),
		callKinds:     kinds("call_expression"),
		calleeFields:  []string{"function"},
		importKinds:   kinds("preproc_include"),
		importKind:    ImportKindInclude,
	},
	classify.LangCSharp: {
		language:       classify.LangCSharp,
		sitterLang:     csharp.GetLanguage(),
		moduleKinds:    kinds("namespace_declaration", "file_scoped_namespace_declaration"),
		classKinds:     kinds("class_declaration", "struct_declaration", "record_declaration"),
		interfaceKinds: kinds("interface_declaration"),
		methodKinds:    kinds("method_declaration", "constructor_declaration"),
		bodyKinds:      kinds("declaration_list"),
		heritageKinds:  kinds("base_list"),
		callKinds:      kinds("invocation_expression", "object_creation_expression"),
		calleeFields:   []string{"function", "type"},
		importKinds:    kinds("using_directive"),
		importKind:     ImportKindImport,
	},
	classify.LangRuby: {
		language:      classify.LangRuby,
		sitterLang:    ruby.GetLanguage(),
		moduleKinds:   kinds("module"),
		classKinds:    kinds("class"),
		functionKinds: kinds("method"),
		methodKinds:   kinds("singleton_method"),
		bodyKinds:     kinds("body_statement"),
		heritageKinds: kinds("superclass"),
		callKinds:     kinds("call"),
		calleeFields:  []string{"method"},
		importKind:    ImportKindRequire,
		importLineRe:  regexp.MustCompile(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`),
	},
}

// GrammarParser is the shared exact parser for languages driven by a
// grammarSpec table entry.
//
// Thread Safety:
//
//	GrammarParser instances are safe for concurrent use. Each Parse
//	call creates its own tree-sitter parser instance.
type GrammarParser struct {
	spec        *grammarSpec
	maxFileSize int64
}

// NewGrammarParser creates the exact parser for the given language.
//
// Returns ErrNoParser if the language has no grammar table entry (Go
// and Python have dedicated parsers instead).
func NewGrammarParser(lang classify.Language) (*GrammarParser, error) {
	spec, ok := grammarSpecs[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no grammar table entry", ErrNoParser, lang)
	}
	return &GrammarParser{spec: spec, maxFileSize: DefaultMaxFileSize}, nil
}

// Language returns the language this parser handles.
func (p *GrammarParser) Language() classify.Language {
	return p.spec.language
}

// Parse extracts symbols using the language's grammar table.
//
// Same error contract as the dedicated parsers: syntax errors degrade
// the status, they never fail the parse.
func (p *GrammarParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	ctx, span := StartParseSpan(ctx, p.spec.language.String(), filePath, len(content))
	defer span.End()

	hash, err := checkContent(content, p.maxFileSize)
	if err != nil {
		return nil, err
	}
	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	parser := sitter.NewParser()
	parser.SetLanguage(p.spec.sitterLang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &ParseResult{
		FilePath: filePath,
		Language: p.spec.language.String(),
		Hash:     hash,
		RawSize:  int64(len(content)),
		Symbols:  make([]*Symbol, 0),
		Imports:  make([]Import, 0),
	}

	root := tree.RootNode()
	if root == nil {
		result.Errors = append(result.Errors, "tree-sitter returned nil root node")
		result.Finalize()
		SetParseSpanResult(span, 0, len(result.Errors))
		return result, nil
	}
	if root.HasError() {
		result.Errors = append(result.Errors, "source contains syntax errors")
	}

	if p.spec.importLineRe != nil {
		p.scanImportLines(content, filePath, result)
	}

	p.walkScope(root, content, filePath, result, "")

	result.Signals = ScanSignals(p.spec.language, content, filePath, result.Symbols)

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("result validation failed: %w", err)
	}
	result.Finalize()
	SetParseSpanResult(span, len(result.Symbols), len(result.Errors))
	return result, nil
}

// walkScope recursively extracts declarations from one scope.
// owner is the qualified name of the enclosing class/interface.
func (p *GrammarParser) walkScope(scope *sitter.Node, content []byte, filePath string, result *ParseResult, owner string) {
	for i := 0; i < int(scope.ChildCount()); i++ {
		node := scope.Child(i)
		if node == nil {
			continue
		}
		kind := node.Type()

		switch {
		case p.spec.importKinds[kind]:
			p.processImport(node, content, filePath, result)

		case p.spec.moduleKinds[kind]:
			p.processModule(node, content, filePath, result, owner)

		case p.spec.classKinds[kind]:
			p.processType(node, content, filePath, result, owner, SymbolKindClass)

		case p.spec.interfaceKinds[kind]:
			p.processType(node, content, filePath, result, owner, SymbolKindInterface)

		case p.spec.functionKinds[kind]:
			symKind := SymbolKindFunction
			if owner != "" {
				symKind = SymbolKindMethod
			}
			p.processCallable(node, content, filePath, result, owner, symKind)

		case p.spec.methodKinds[kind]:
			p.processCallable(node, content, filePath, result, owner, SymbolKindMethod)

		case kind == "impl_item":
			// Rust: methods in an impl block belong to the impl'd type;
			// "impl Trait for Type" also records the trait as supertype.
			p.processRustImpl(node, content, filePath, result)

		default:
			// Recurse through structural containers (export statements,
			// declaration lists, ERROR nodes with salvageable children).
			if node.NamedChildCount() > 0 && !p.spec.callKinds[kind] {
				p.walkScope(node, content, filePath, result, owner)
			}
		}
	}
}

// processModule records a namespace/package/module declaration and
// recurses into its body at the same ownership level.
func (p *GrammarParser) processModule(node *sitter.Node, content []byte, filePath string, result *ParseResult, owner string) {
	name := p.moduleName(node, content)
	if name != "" && result.Module == "" {
		result.Module = name
		result.Symbols = append(result.Symbols, &Symbol{
			ID:            GenerateID(filePath, startLine(node), name),
			Name:          name,
			QualifiedName: name,
			Kind:          SymbolKindModule,
			FilePath:      filePath,
			StartLine:     startLine(node),
			EndLine:       endLine(node),
			Signature:     firstLine(nodeText(node, content)),
			Language:      p.spec.language.String(),
		})
	}
	if body := p.bodyOf(node); body != nil {
		p.walkScope(body, content, filePath, result, owner)
	}
}

// moduleName extracts a namespace/package name, keeping its dotted or
// scoped form intact.
func (p *GrammarParser) moduleName(node *sitter.Node, content []byte) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return nodeText(nameNode, content)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "scoped_identifier", "qualified_name", "identifier", "constant",
			"namespace_identifier", "dotted_name":
			return nodeText(child, content)
		}
	}
	return ""
}

// bodyOf finds a declaration's member container, by field first and by
// the spec's body kinds otherwise.
func (p *GrammarParser) bodyOf(node *sitter.Node) *sitter.Node {
	if body := node.ChildByFieldName("body"); body != nil {
		return body
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child != nil && p.spec.bodyKinds[child.Type()] {
			return child
		}
	}
	return nil
}

// processType records a class or interface and recurses into its body
// for members.
func (p *GrammarParser) processType(node *sitter.Node, content []byte, filePath string, result *ParseResult, owner string, kind SymbolKind) {
	name := p.declaredName(node, content)
	if name == "" {
		return
	}

	sym := &Symbol{
		ID:            GenerateID(filePath, startLine(node), name),
		Name:          name,
		QualifiedName: QualifyName(result.Module, owner, name),
		Kind:          kind,
		FilePath:      filePath,
		StartLine:     startLine(node),
		EndLine:       endLine(node),
		Owner:         owner,
		Signature:     firstLine(nodeText(node, content)),
		Modifiers:     p.nodeModifiers(node, content),
		Supertypes:    p.heritageNames(node, content),
		Language:      p.spec.language.String(),
	}
	if kind == SymbolKindInterface || node.Type() == "abstract_class_declaration" {
		sym.Modifiers.Abstract = true
	}
	result.Symbols = append(result.Symbols, sym)

	if body := p.bodyOf(node); body != nil {
		p.walkScope(body, content, filePath, result, sym.QualifiedName)
	}
}

// processCallable records a function or method.
func (p *GrammarParser) processCallable(node *sitter.Node, content []byte, filePath string, result *ParseResult, owner string, kind SymbolKind) {
	name := p.declaredName(node, content)
	if name == "" {
		return
	}

	sym := &Symbol{
		ID:            GenerateID(filePath, startLine(node), name),
		Name:          name,
		QualifiedName: QualifyName(result.Module, owner, name),
		Kind:          kind,
		FilePath:      filePath,
		StartLine:     startLine(node),
		EndLine:       endLine(node),
		Owner:         owner,
		Signature:     firstLine(nodeText(node, content)),
		Modifiers:     p.nodeModifiers(node, content),
		Language:      p.spec.language.String(),
	}
	if strings.HasPrefix(name, "_") {
		sym.Modifiers.Private = true
	}

	if body := node.ChildByFieldName("body"); body != nil {
		sym.References = collectCallRefs(body, content, p.spec.callKinds, p.spec.calleeFields)
	}

	result.Symbols = append(result.Symbols, sym)
}

// processRustImpl handles Rust impl blocks: members become methods of
// the impl'd type, and trait impls record the trait as a supertype on
// the type's Class symbol when it was declared in the same file.
func (p *GrammarParser) processRustImpl(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	typeName := calleeName(nodeText(node.ChildByFieldName("type"), content))
	if typeName == "" {
		return
	}
	ownerQName := QualifyName(result.Module, "", typeName)

	if traitNode := node.ChildByFieldName("trait"); traitNode != nil {
		trait := calleeName(nodeText(traitNode, content))
		for _, sym := range result.Symbols {
			if sym.Kind == SymbolKindClass && sym.Name == typeName && trait != "" {
				sym.Supertypes = append(sym.Supertypes, trait)
			}
		}
	}

	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.ChildCount()); i++ {
			child := body.Child(i)
			if child != nil && child.Type() == "function_item" {
				p.processCallable(child, content, filePath, result, ownerQName, SymbolKindMethod)
			}
		}
	}
}

// declaredName extracts a declaration's name: the "name" field first,
// then the C++ declarator chain, then the first identifier-ish child.
func (p *GrammarParser) declaredName(node *sitter.Node, content []byte) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return calleeName(nodeText(nameNode, content))
	}

	// C++ functions name through the declarator chain.
	if decl := node.ChildByFieldName("declarator"); decl != nil {
		var name string
		walk(decl, func(n *sitter.Node, _ int) bool {
			if name != "" {
				return false
			}
			switch n.Type() {
			case "identifier", "field_identifier", "qualified_identifier", "destructor_name":
				name = calleeName(nodeText(n, content))
				return false
			}
			return true
		})
		return name
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "identifier", "constant", "type_identifier", "property_identifier":
			return nodeText(child, content)
		}
	}
	return ""
}

// modifierTokens are the modifier keywords normalized into Modifiers.
var modifierTokens = map[string]func(*Modifiers){
	"static":    func(m *Modifiers) { m.Static = true },
	"private":   func(m *Modifiers) { m.Private = true },
	"protected": func(m *Modifiers) { m.Private = true },
	"abstract":  func(m *Modifiers) { m.Abstract = true },
	"virtual":   func(m *Modifiers) { m.Abstract = true },
}

// nodeModifiers normalizes the declaration's modifier keywords.
func (p *GrammarParser) nodeModifiers(node *sitter.Node, content []byte) Modifiers {
	var mods Modifiers
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "modifiers", "modifier":
			for token, apply := range modifierTokens {
				if strings.Contains(nodeText(child, content), token) {
					apply(&mods)
				}
			}
		default:
			if apply, ok := modifierTokens[child.Type()]; ok {
				apply(&mods)
			}
		}
	}
	return mods
}

// heritageNames extracts extends/implements names from the heritage
// clauses attached to a type declaration.
func (p *GrammarParser) heritageNames(node *sitter.Node, content []byte) []string {
	var names []string
	seen := make(map[string]bool)

	collect := func(clause *sitter.Node) {
		for _, token := range identifierTokens(nodeText(clause, content)) {
			if heritageKeywords[token] || seen[token] {
				continue
			}
			seen[token] = true
			names = append(names, token)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if p.spec.heritageKinds[child.Type()] {
			collect(child)
		}
	}
	for _, field := range []string{"superclass", "interfaces", "bases"} {
		if clause := node.ChildByFieldName(field); clause != nil && !p.spec.heritageKinds[clause.Type()] {
			collect(clause)
		}
	}
	return names
}

// heritageKeywords are tokens in heritage clauses that are not type names.
var heritageKeywords = map[string]bool{
	"extends": true, "implements": true, "public": true, "private": true,
	"protected": true, "virtual": true, "class": true, "interface": true,
	"where": true, "type": true,
}

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// identifierTokens returns the plain identifiers in a clause, dropping
// generic arguments and qualification.
func identifierTokens(text string) []string {
	// Strip generic argument lists so "List<User>" yields only "List".
	depth := 0
	var b strings.Builder
	for _, r := range text {
		switch r {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return identifierRe.FindAllString(b.String(), -1)
}

// processImport extracts the import path from an import node.
func (p *GrammarParser) processImport(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	var path string

	if source := node.ChildByFieldName("source"); source != nil {
		path = strings.Trim(nodeText(source, content), `"'`)
	} else if pathNode := node.ChildByFieldName("path"); pathNode != nil {
		path = strings.Trim(nodeText(pathNode, content), `"<>`)
	} else if arg := node.ChildByFieldName("argument"); arg != nil {
		path = nodeText(arg, content)
	} else {
		// Java/C# style: the scoped name is the first named child.
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "scoped_identifier", "qualified_name", "identifier", "dotted_name",
				"string_literal", "system_lib_string":
				path = strings.Trim(nodeText(child, content), `"<>`)
			}
			if path != "" {
				break
			}
		}
	}

	if path == "" {
		return
	}
	result.Imports = append(result.Imports, Import{
		Path:       path,
		Kind:       p.spec.importKind,
		IsRelative: strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../"),
		Location: Location{
			FilePath:  filePath,
			StartLine: startLine(node),
			EndLine:   endLine(node),
		},
	})
}

// scanImportLines extracts imports with the spec's line regex, for
// languages where imports are ordinary calls (Ruby's require).
func (p *GrammarParser) scanImportLines(content []byte, filePath string, result *ParseResult) {
	for i, line := range strings.Split(string(content), "\n") {
		m := p.spec.importLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		result.Imports = append(result.Imports, Import{
			Path:       m[1],
			Kind:       p.spec.importKind,
			IsRelative: strings.Contains(line, "require_relative"),
			Location: Location{
				FilePath:  filePath,
				StartLine: i + 1,
				EndLine:   i + 1,
			},
		})
	}
}
