// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides the run-scoped parse cache.
//
// A cache instance is created per analysis run and passed by reference
// into the parse phase; there is no process-global state. Entries are
// keyed by the SHA-256 of file content, so duplicated files (vendored
// copies, template instantiations) parse once per run.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AleutianAI/CodeAtlas/services/intel/ast"
)

// DefaultCapacity bounds the number of cached parse results per run.
const DefaultCapacity = 4096

// ErrInvalidCapacity indicates a non-positive capacity.
var ErrInvalidCapacity = errors.New("cache: capacity must be positive")

// Stats reports cache effectiveness for the run report.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// ParseCache memoizes parse results by content hash for one run.
//
// Thread Safety:
//
//	Safe for concurrent use by the parse worker pool.
type ParseCache struct {
	entries *lru.Cache[string, *ast.ParseResult]
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a parse cache with the given capacity.
func New(capacity int) (*ParseCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	entries, err := lru.New[string, *ast.ParseResult](capacity)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &ParseCache{entries: entries}, nil
}

// HashContent returns the cache key for file content: the hex SHA-256.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached result for a content hash.
func (c *ParseCache) Get(hash string) (*ast.ParseResult, bool) {
	result, ok := c.entries.Get(hash)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return result, ok
}

// Put stores a parse result under its content hash. Results with an
// empty hash are not cached.
func (c *ParseCache) Put(hash string, result *ast.ParseResult) {
	if hash == "" || result == nil {
		return
	}
	c.entries.Add(hash, result)
}

// Len returns the number of cached entries.
func (c *ParseCache) Len() int {
	return c.entries.Len()
}

// Stats returns hit/miss counters.
func (c *ParseCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
