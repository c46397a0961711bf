package ast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// Helpers shared by the exact (tree-sitter) parsers.

// checkContent enforces the size and encoding limits common to all
// parsers. Returns the content hash on success.
func checkContent(content []byte, maxFileSize int64) (string, error) {
	if int64(len(content)) > maxFileSize {
		return "", fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), maxFileSize)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:]), nil
}

// nodeText returns the source text covered by a node.
func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(content) || start > end {
		return ""
	}
	return string(content[start:end])
}

// startLine returns the 1-indexed start line of a node.
func startLine(node *sitter.Node) int {
	return int(node.StartPoint().Row + 1)
}

// endLine returns the 1-indexed end line of a node.
func endLine(node *sitter.Node) int {
	return int(node.EndPoint().Row + 1)
}

// firstLine returns the first line of a declaration's text, trimmed.
// Used for single-line signatures.
func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimRight(strings.TrimSpace(text), "{")
}

// maxWalkDepth bounds tree traversal to protect against pathological
// nesting in malformed input.
const maxWalkDepth = 200

// walk visits every node in the subtree up to maxWalkDepth, calling
// visit with the node and its depth. visit returning false prunes the
// subtree below that node.
func walk(root *sitter.Node, visit func(node *sitter.Node, depth int) bool) {
	type frame struct {
		node  *sitter.Node
		depth int
	}
	if root == nil {
		return
	}

	stack := []frame{{root, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !visit(f.node, f.depth) || f.depth >= maxWalkDepth {
			continue
		}
		// Push children in reverse so traversal stays in source order.
		for i := int(f.node.ChildCount()) - 1; i >= 0; i-- {
			if child := f.node.Child(i); child != nil {
				stack = append(stack, frame{child, f.depth + 1})
			}
		}
	}
}

// calleeName extracts the called name from a call target expression.
// For selector-style targets ("obj.Method", "pkg::fn") only the last
// segment is kept; the project aggregator resolves it best-effort.
func calleeName(text string) string {
	text = strings.TrimSpace(text)
	for _, sep := range []string{"::", ".", "->"} {
		if idx := strings.LastIndex(text, sep); idx >= 0 {
			text = text[idx+len(sep):]
		}
	}
	// Drop generic arguments: "make" from "make[T]" style targets.
	if idx := strings.IndexAny(text, "[<("); idx >= 0 {
		text = text[:idx]
	}
	if text == "" || !isIdentifier(text) {
		return ""
	}
	return text
}

// isIdentifier reports whether s looks like a plain identifier.
func isIdentifier(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return s != ""
}

// appendReference appends name to refs if it is non-empty and not
// already the most recent entry (cheap local dedup; full dedup happens
// in the aggregator).
func appendReference(refs []string, name string) []string {
	if name == "" {
		return refs
	}
	if len(refs) > 0 && refs[len(refs)-1] == name {
		return refs
	}
	return append(refs, name)
}

// collectCallRefs walks a body subtree collecting called names from
// nodes of the given kinds. calleeFields lists the field names that
// hold the call target ("function" for most grammars).
func collectCallRefs(body *sitter.Node, content []byte, callKinds map[string]bool, calleeFields []string) []string {
	if body == nil {
		return nil
	}
	var refs []string
	walk(body, func(node *sitter.Node, _ int) bool {
		if !callKinds[node.Type()] {
			return true
		}
		for _, field := range calleeFields {
			if target := node.ChildByFieldName(field); target != nil {
				refs = appendReference(refs, calleeName(nodeText(target, content)))
				return true
			}
		}
		// Grammars without a field for the target (e.g., ruby "call")
		// use the first named child.
		if target := node.NamedChild(0); target != nil {
			refs = appendReference(refs, calleeName(nodeText(target, content)))
		}
		return true
	})
	return refs
}

// leadingLower reports whether a name starts with a lowercase rune,
// the unexported-name convention in Go.
func leadingLower(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsLower(r)
}
