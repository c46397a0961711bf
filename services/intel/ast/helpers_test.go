package ast

// Shared test helpers for the parser tests.

func filterByKind(symbols []*Symbol, kind SymbolKind) []*Symbol {
	var out []*Symbol
	for _, s := range symbols {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func findSymbol(symbols []*Symbol, name string) *Symbol {
	for _, s := range symbols {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func findImport(imports []Import, path string) *Import {
	for i := range imports {
		if imports[i].Path == path {
			return &imports[i]
		}
	}
	return nil
}

func hasReference(refs []string, name string) bool {
	for _, r := range refs {
		if r == name {
			return true
		}
	}
	return false
}
