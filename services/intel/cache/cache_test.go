// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"errors"
	"testing"

	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
)

func TestNew_InvalidCapacity(t *testing.T) {
	if _, err := New(0); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
}

func TestParseCache_GetPut(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	content := []byte("package main")
	hash := HashContent(content)

	if _, ok := c.Get(hash); ok {
		t.Fatal("expected miss on empty cache")
	}

	result := &ast.ParseResult{FilePath: "main.go", Language: "go", Hash: hash}
	c.Put(hash, result)

	got, ok := c.Get(hash)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if got != result {
		t.Error("expected the same result pointer back")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %+v", stats)
	}
}

func TestParseCache_IgnoresEmptyHash(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put("", &ast.ParseResult{})
	if c.Len() != 0 {
		t.Error("expected empty hash to be dropped")
	}
}

func TestParseCache_Eviction(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put("a", &ast.ParseResult{FilePath: "a"})
	c.Put("b", &ast.ParseResult{FilePath: "b"})
	c.Put("c", &ast.ParseResult{FilePath: "c"})
	if c.Len() != 2 {
		t.Errorf("expected capacity bound of 2, got %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected oldest entry to be evicted")
	}
}

func TestHashContent_Stable(t *testing.T) {
	a := HashContent([]byte("same"))
	b := HashContent([]byte("same"))
	if a != b {
		t.Error("expected identical content to hash identically")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got length %d", len(a))
	}
	if a == HashContent([]byte("different")) {
		t.Error("expected different content to hash differently")
	}
}

func TestRebindOnDuplicateContent(t *testing.T) {
	result := &ast.ParseResult{
		FilePath: "a/util.go",
		Language: "go",
		Module:   "util",
		Symbols: []*ast.Symbol{
			{ID: "a/util.go:1:helper", Name: "helper", FilePath: "a/util.go", StartLine: 1, EndLine: 2},
		},
	}
	clone := result.Rebind("b/util.go")

	if clone.FilePath != "b/util.go" {
		t.Errorf("expected rebased file path, got %s", clone.FilePath)
	}
	if clone.Symbols[0].ID != "b/util.go:1:helper" {
		t.Errorf("expected regenerated symbol ID, got %s", clone.Symbols[0].ID)
	}
	if clone.Module != "util" {
		t.Errorf("declared module must survive rebinding, got %q", clone.Module)
	}
	if result.Symbols[0].FilePath != "a/util.go" {
		t.Error("rebind must not mutate the cached original")
	}
}
