package ast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/AleutianAI/CodeAtlas/services/intel/classify"
)

// PythonParserOption configures a PythonParser instance.
type PythonParserOption func(*PythonParser)

// WithPythonMaxFileSize sets the maximum file size the parser will accept.
func WithPythonMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// PythonParser implements the Parser interface for Python source code.
//
// PythonParser uses tree-sitter for full-fidelity extraction: classes
// with superclasses, methods with decorator-derived modifiers
// (@staticmethod, @abstractmethod), imports in both statement forms,
// and Qt-style signal idioms (pyqtSignal declarations, .connect()/
// .emit() call sites).
//
// Thread Safety:
//
//	PythonParser instances are safe for concurrent use. Each Parse
//	call creates its own tree-sitter parser instance internally.
type PythonParser struct {
	maxFileSize int64
}

// NewPythonParser creates a new PythonParser with the given options.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Language returns classify.LangPython.
func (p *PythonParser) Language() classify.Language {
	return classify.LangPython
}

// pythonCallKinds are the node types collected as call references.
var pythonCallKinds = map[string]bool{
	"call": true,
}

// Parse extracts symbols from Python source code.
//
// Error-tolerant: invalid syntax degrades the result status instead of
// failing the parse. Only size, encoding, and context violations
// return an error.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	ctx, span := StartParseSpan(ctx, "python", filePath, len(content))
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
	parser.SetLanguage(python.GetLanguage())

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
		Language: "python",
		Module:   moduleFromPath(filePath),
		Hash:     hash,
		RawSize:  int64(len(content)),
		Symbols:  make([]*Symbol, 0),
		Imports:  make([]Import, 0),
	}
	result.pathModule = true

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

	p.extractImports(root, content, filePath, result)
	p.extractDefinitions(root, content, filePath, result, "")

	result.Signals = ScanSignals(classify.LangPython, content, filePath, result.Symbols)

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("result validation failed: %w", err)
	}
	result.Finalize()
	SetParseSpanResult(span, len(result.Symbols), len(result.Errors))
	return result, nil
}

// extractImports handles both "import x" and "from x import y" forms.
func (p *PythonParser) extractImports(root *sitter.Node, content []byte, filePath string, result *ParseResult) {
	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		switch node.Type() {
		case "import_statement":
			p.processImport(node, content, filePath, result)
		case "import_from_statement":
			p.processImportFrom(node, content, filePath, result)
		}
	}
}

// processImport extracts "import a.b" and "import a.b as c".
func (p *PythonParser) processImport(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			result.Imports = append(result.Imports, Import{
				Path: nodeText(child, content),
				Kind: ImportKindImport,
				Location: Location{
					FilePath:  filePath,
					StartLine: startLine(node),
					EndLine:   endLine(node),
				},
			})
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			if nameNode == nil {
				continue
			}
			result.Imports = append(result.Imports, Import{
				Path:  nodeText(nameNode, content),
				Alias: nodeText(aliasNode, content),
				Kind:  ImportKindImport,
				Location: Location{
					FilePath:  filePath,
					StartLine: startLine(node),
					EndLine:   endLine(node),
				},
			})
		}
	}
}

// processImportFrom extracts "from a.b import c" including relative
// imports ("from . import c").
func (p *PythonParser) processImportFrom(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return
	}
	path := nodeText(moduleNode, content)
	result.Imports = append(result.Imports, Import{
		Path:       path,
		Kind:       ImportKindImport,
		IsRelative: strings.HasPrefix(path, "."),
		Location: Location{
			FilePath:  filePath,
			StartLine: startLine(node),
			EndLine:   endLine(node),
		},
	})
}

// extractDefinitions walks one scope level extracting classes and
// functions. owner is the qualified name of the enclosing class, empty
// at module level.
func (p *PythonParser) extractDefinitions(scope *sitter.Node, content []byte, filePath string, result *ParseResult, owner string) {
	for i := 0; i < int(scope.ChildCount()); i++ {
		node := scope.Child(i)

		var decorators []string
		if node.Type() == "decorated_definition" {
			decorators = p.decoratorNames(node, content)
			if def := node.ChildByFieldName("definition"); def != nil {
				node = def
			}
		}

		switch node.Type() {
		case "class_definition":
			p.processClass(node, content, filePath, result, owner, decorators)
		case "function_definition":
			p.processFunction(node, content, filePath, result, owner, decorators)
		}
	}
}

// decoratorNames returns the decorator identifiers on a decorated
// definition, without the leading @ or call arguments.
func (p *PythonParser) decoratorNames(node *sitter.Node, content []byte) []string {
	var names []string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "decorator" {
			continue
		}
		text := strings.TrimPrefix(nodeText(child, content), "@")
		if idx := strings.IndexByte(text, '('); idx >= 0 {
			text = text[:idx]
		}
		names = append(names, strings.TrimSpace(text))
	}
	return names
}

// processClass extracts a class definition and recurses into its body
// for methods and nested classes.
func (p *PythonParser) processClass(node *sitter.Node, content []byte, filePath string, result *ParseResult, owner string, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	sym := &Symbol{
		ID:            GenerateID(filePath, startLine(node), name),
		Name:          name,
		QualifiedName: QualifyName(result.Module, owner, name),
		Kind:          SymbolKindClass,
		FilePath:      filePath,
		StartLine:     startLine(node),
		EndLine:       endLine(node),
		Owner:         owner,
		Signature:     firstLine(nodeText(node, content)),
		Modifiers:     Modifiers{Private: strings.HasPrefix(name, "_")},
		Language:      "python",
	}

	// Superclasses: "class Foo(Base, Protocol):"
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for j := 0; j < int(supers.NamedChildCount()); j++ {
			arg := supers.NamedChild(j)
			if base := calleeName(nodeText(arg, content)); base != "" {
				sym.Supertypes = append(sym.Supertypes, base)
			}
		}
	}
	for _, base := range sym.Supertypes {
		if base == "ABC" || base == "Protocol" {
			sym.Kind = SymbolKindInterface
			sym.Modifiers.Abstract = true
		}
	}
	for _, dec := range decorators {
		if dec == "abstractmethod" || strings.HasSuffix(dec, ".abstractmethod") {
			sym.Modifiers.Abstract = true
		}
	}

	result.Symbols = append(result.Symbols, sym)

	if body := node.ChildByFieldName("body"); body != nil {
		p.extractDefinitions(body, content, filePath, result, sym.QualifiedName)
	}
}

// processFunction extracts a function or method definition.
func (p *PythonParser) processFunction(node *sitter.Node, content []byte, filePath string, result *ParseResult, owner string, decorators []string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	kind := SymbolKindFunction
	if owner != "" {
		kind = SymbolKindMethod
	}

	mods := Modifiers{Private: strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "__init__")}
	for _, dec := range decorators {
		switch {
		case dec == "staticmethod" || dec == "classmethod":
			mods.Static = true
		case dec == "abstractmethod" || strings.HasSuffix(dec, ".abstractmethod"):
			mods.Abstract = true
		}
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
		Modifiers:     mods,
		Language:      "python",
	}

	if body := node.ChildByFieldName("body"); body != nil {
		sym.References = collectCallRefs(body, content, pythonCallKinds, []string{"function"})
	}

	result.Symbols = append(result.Symbols, sym)
}

