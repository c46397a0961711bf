package ast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/AleutianAI/CodeAtlas/services/intel/classify"
)

// GoParserOption configures a GoParser instance.
type GoParserOption func(*GoParser)

// WithGoMaxFileSize sets the maximum file size the parser will accept.
func WithGoMaxFileSize(bytes int64) GoParserOption {
	return func(p *GoParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// GoParser implements the Parser interface for Go source code.
//
// GoParser uses tree-sitter for full-fidelity extraction: precise
// symbol boundaries, receiver-based method ownership, embedded-type
// supertypes, and call references from function bodies.
//
// Thread Safety:
//
//	GoParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser instance internally.
type GoParser struct {
	maxFileSize int64
}

// NewGoParser creates a new GoParser with the given options.
func NewGoParser(opts ...GoParserOption) *GoParser {
	p := &GoParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Language returns classify.LangGo.
func (p *GoParser) Language() classify.Language {
	return classify.LangGo
}

// goCallKinds are the node types collected as call references.
var goCallKinds = map[string]bool{
	"call_expression":   true,
	"composite_literal": true,
}

// Parse extracts symbols from Go source code.
//
// The parse is error-tolerant: syntactically invalid code produces a
// ParseResult with StatusPartial (salvaged symbols) or StatusFailed
// (no symbols) rather than an error. Only size, encoding, and context
// violations return an error.
func (p *GoParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	ctx, span := StartParseSpan(ctx, "go", filePath, len(content))
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
	parser.SetLanguage(golang.GetLanguage())

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
		Language: "go",
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

	p.extractPackage(root, content, filePath, result)
	p.extractImports(root, content, filePath, result)
	p.extractTypes(root, content, filePath, result)
	p.extractFunctions(root, content, filePath, result)

	result.Signals = ScanSignals(classify.LangGo, content, filePath, result.Symbols)

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("result validation failed: %w", err)
	}
	result.Finalize()
	SetParseSpanResult(span, len(result.Symbols), len(result.Errors))
	return result, nil
}

// extractPackage records the package clause as a Module symbol and
// sets result.Module.
func (p *GoParser) extractPackage(root *sitter.Node, content []byte, filePath string, result *ParseResult) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child.Type() != "package_clause" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			nameNode := child.Child(j)
			if nameNode.Type() != "package_identifier" {
				continue
			}
			name := nodeText(nameNode, content)
			result.Module = name
			result.Symbols = append(result.Symbols, &Symbol{
				ID:            GenerateID(filePath, startLine(nameNode), name),
				Name:          name,
				QualifiedName: name,
				Kind:          SymbolKindModule,
				FilePath:      filePath,
				StartLine:     startLine(nameNode),
				EndLine:       endLine(nameNode),
				Signature:     firstLine(nodeText(child, content)),
				Language:      "go",
			})
			return
		}
	}
}

// extractImports extracts import declarations, grouped or single.
func (p *GoParser) extractImports(root *sitter.Node, content []byte, filePath string, result *ParseResult) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child.Type() != "import_declaration" {
			continue
		}
		walk(child, func(node *sitter.Node, _ int) bool {
			if node.Type() == "import_spec" {
				p.processImportSpec(node, content, filePath, result)
				return false
			}
			return true
		})
	}
}

// processImportSpec extracts a single import specification.
func (p *GoParser) processImportSpec(node *sitter.Node, content []byte, filePath string, result *ParseResult) {
	var alias, path string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "package_identifier", "blank_identifier", "dot":
			alias = nodeText(child, content)
		case "interpreted_string_literal", "raw_string_literal":
			path = strings.Trim(nodeText(child, content), "\"`")
		}
	}
	if path == "" {
		return
	}

	result.Imports = append(result.Imports, Import{
		Path:       path,
		Alias:      alias,
		Kind:       ImportKindImport,
		IsRelative: strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../"),
		Location: Location{
			FilePath:  filePath,
			StartLine: startLine(node),
			EndLine:   endLine(node),
		},
	})
}

// extractTypes extracts struct and interface declarations.
//
// Structs map to Class, interfaces to Interface. Embedded types become
// supertypes; interface method specs become Abstract methods owned by
// the interface.
func (p *GoParser) extractTypes(root *sitter.Node, content []byte, filePath string, result *ParseResult) {
	for i := 0; i < int(root.ChildCount()); i++ {
		decl := root.Child(i)
		if decl.Type() != "type_declaration" {
			continue
		}
		for j := 0; j < int(decl.ChildCount()); j++ {
			spec := decl.Child(j)
			if spec.Type() == "type_spec" {
				p.processTypeSpec(spec, content, filePath, result)
			}
		}
	}
}

// processTypeSpec extracts one named type.
func (p *GoParser) processTypeSpec(spec *sitter.Node, content []byte, filePath string, result *ParseResult) {
	nameNode := spec.ChildByFieldName("name")
	typeNode := spec.ChildByFieldName("type")
	if nameNode == nil || typeNode == nil {
		return
	}

	name := nodeText(nameNode, content)
	sym := &Symbol{
		ID:            GenerateID(filePath, startLine(spec), name),
		Name:          name,
		QualifiedName: QualifyName(result.Module, "", name),
		Kind:          SymbolKindClass,
		FilePath:      filePath,
		StartLine:     startLine(spec),
		EndLine:       endLine(spec),
		Signature:     firstLine(nodeText(spec, content)),
		Modifiers:     Modifiers{Private: leadingLower(name)},
		Language:      "go",
	}

	switch typeNode.Type() {
	case "interface_type":
		sym.Kind = SymbolKindInterface
		sym.Modifiers.Abstract = true
		p.extractInterfaceMembers(typeNode, content, filePath, sym, result)
	case "struct_type":
		p.extractEmbeddedFields(typeNode, content, sym)
	default:
		// Type aliases and basic definitions are not analysis-relevant
		// symbols; only composite shapes participate in pattern rules.
		return
	}

	result.Symbols = append(result.Symbols, sym)
}

// extractEmbeddedFields records embedded struct fields as supertypes.
func (p *GoParser) extractEmbeddedFields(structType *sitter.Node, content []byte, sym *Symbol) {
	walk(structType, func(node *sitter.Node, _ int) bool {
		if node.Type() != "field_declaration" {
			return true
		}
		// An embedded field has a type but no name field.
		if node.ChildByFieldName("name") == nil {
			if typeNode := node.ChildByFieldName("type"); typeNode != nil {
				embedded := strings.TrimPrefix(nodeText(typeNode, content), "*")
				if base := calleeName(embedded); base != "" {
					sym.Supertypes = append(sym.Supertypes, base)
				}
			}
		}
		return false
	})
}

// extractInterfaceMembers records interface method specs as Abstract
// method symbols owned by the interface.
func (p *GoParser) extractInterfaceMembers(ifaceType *sitter.Node, content []byte, filePath string, owner *Symbol, result *ParseResult) {
	walk(ifaceType, func(node *sitter.Node, _ int) bool {
		switch node.Type() {
		case "method_spec", "method_elem":
			nameNode := node.ChildByFieldName("name")
			if nameNode == nil {
				return false
			}
			name := nodeText(nameNode, content)
			result.Symbols = append(result.Symbols, &Symbol{
				ID:            GenerateID(filePath, startLine(node), name),
				Name:          name,
				QualifiedName: QualifyName("", owner.QualifiedName, name),
				Kind:          SymbolKindMethod,
				FilePath:      filePath,
				StartLine:     startLine(node),
				EndLine:       endLine(node),
				Owner:         owner.QualifiedName,
				Signature:     firstLine(nodeText(node, content)),
				Modifiers:     Modifiers{Abstract: true, Private: leadingLower(name)},
				Language:      "go",
			})
			return false
		case "type_identifier":
			// Embedded interface.
			owner.Supertypes = append(owner.Supertypes, nodeText(node, content))
			return false
		}
		return true
	})
}

// extractFunctions extracts function and method declarations.
func (p *GoParser) extractFunctions(root *sitter.Node, content []byte, filePath string, result *ParseResult) {
	for i := 0; i < int(root.ChildCount()); i++ {
		decl := root.Child(i)
		switch decl.Type() {
		case "function_declaration":
			p.processFunction(decl, content, filePath, result, "")
		case "method_declaration":
			receiver := p.receiverType(decl, content)
			p.processFunction(decl, content, filePath, result, receiver)
		}
	}
}

// processFunction extracts one function or method declaration.
// receiver is the receiver type name; empty means plain function.
func (p *GoParser) processFunction(decl *sitter.Node, content []byte, filePath string, result *ParseResult, receiver string) {
	nameNode := decl.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	kind := SymbolKindFunction
	owner := ""
	if receiver != "" {
		kind = SymbolKindMethod
		owner = QualifyName(result.Module, "", receiver)
	}

	sym := &Symbol{
		ID:            GenerateID(filePath, startLine(decl), name),
		Name:          name,
		QualifiedName: QualifyName(result.Module, owner, name),
		Kind:          kind,
		FilePath:      filePath,
		StartLine:     startLine(decl),
		EndLine:       endLine(decl),
		Owner:         owner,
		Signature:     firstLine(nodeText(decl, content)),
		Modifiers:     Modifiers{Private: leadingLower(name)},
		Language:      "go",
	}

	if body := decl.ChildByFieldName("body"); body != nil {
		sym.References = collectCallRefs(body, content, goCallKinds, []string{"function", "type"})
	}

	result.Symbols = append(result.Symbols, sym)
}

// receiverType extracts the bare receiver type name from a method
// declaration ("(s *Server)" -> "Server").
func (p *GoParser) receiverType(decl *sitter.Node, content []byte) string {
	receiver := decl.ChildByFieldName("receiver")
	if receiver == nil {
		return ""
	}
	text := strings.Trim(nodeText(receiver, content), "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	typeName := fields[len(fields)-1]
	typeName = strings.TrimPrefix(typeName, "*")
	if idx := strings.IndexByte(typeName, '['); idx >= 0 {
		typeName = typeName[:idx]
	}
	return typeName
}
