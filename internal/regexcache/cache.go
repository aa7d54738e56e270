// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package regexcache provides a process-wide LRU cache of compiled
// regexes keyed by (pattern source, compile flags). It is the sole path
// by which any component obtains a compiled matcher: gates resolve their
// catalog patterns here before scanning, so compilation never happens in
// the per-file hot path.
package regexcache

import (
	"container/list"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// Flags is a bitmask of regex compile options.
type Flags uint8

const (
	CaseInsensitive Flags = 1 << iota
	Multiline
	DotAll
)

// ParseFlags converts a catalog flag string ("i", "im") into a bitmask.
func ParseFlags(s string) (Flags, error) {
	var f Flags
	for _, r := range s {
		switch r {
		case 'i':
			f |= CaseInsensitive
		case 'm':
			f |= Multiline
		case 's':
			f |= DotAll
		default:
			return 0, fmt.Errorf("unknown regex flag %q", string(r))
		}
	}
	return f, nil
}

// expr renders source with the flag prefix understood by regexp.Compile.
func (f Flags) expr(source string) string {
	if f == 0 {
		return source
	}
	var b strings.Builder
	b.WriteString("(?")
	if f&CaseInsensitive != 0 {
		b.WriteByte('i')
	}
	if f&Multiline != 0 {
		b.WriteByte('m')
	}
	if f&DotAll != 0 {
		b.WriteByte('s')
	}
	b.WriteByte(')')
	b.WriteString(source)
	return b.String()
}

func (f Flags) String() string {
	var b strings.Builder
	if f&CaseInsensitive != 0 {
		b.WriteByte('i')
	}
	if f&Multiline != 0 {
		b.WriteByte('m')
	}
	if f&DotAll != 0 {
		b.WriteByte('s')
	}
	return b.String()
}

// Defaults bound the cache when the config does not say otherwise.
const (
	DefaultMaxEntries = 10_000
	DefaultMaxBytes   = 64 << 20
)

// Per-entry memory estimate. Compiled programs are not directly
// measurable, so cost is a byte-counted heuristic on the source.
const (
	entryOverheadBytes = 1024
	bytesPerSourceByte = 48
)

// Sample size for eviction. Read hits update an atomic access stamp
// without reordering the list, so eviction inspects the coldest tail
// entries and removes the one with the oldest stamp.
const evictSample = 8

type key struct {
	source string
	flags  Flags
}

type entry struct {
	source     string
	flags      Flags
	re         *regexp.Regexp
	provenance string
	cost       int64
	lastAccess atomic.Int64 // unix nanos
}

func (e *entry) touch() { e.lastAccess.Store(time.Now().UnixNano()) }

// Entry is a read-only view of a cached pattern, for introspection.
type Entry struct {
	Source     string
	Flags      Flags
	Regexp     *regexp.Regexp
	Provenance string
}

// Stats is a point-in-time snapshot of cache performance.
type Stats struct {
	Size          int    `json:"size"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	MemoryBytes   int64  `json:"memory_bytes"`
	CompileErrors uint64 `json:"compile_errors"`
}

// Cache is a thread-safe LRU of compiled regexes. Lookups run under a
// shared lock; compilation happens outside any lock with a double-checked
// insert, so two racing compilers of the same key still converge on one
// matcher object.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]*list.Element
	lru     *list.List // front = most recently inserted
	mem     int64

	maxEntries int
	maxBytes   int64

	hits          atomic.Uint64
	misses        atomic.Uint64
	evictions     atomic.Uint64
	compileErrors atomic.Uint64
}

// New returns a cache bounded by maxEntries and maxBytes. Non-positive
// bounds fall back to the defaults.
func New(maxEntries int, maxBytes int64) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Cache{
		entries:    make(map[key]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}
}

// Get returns the compiled matcher for (source, flags), compiling and
// caching it on first use. Repeat calls with the same key return the
// same *regexp.Regexp while the entry stays resident.
func (c *Cache) Get(source string, flags Flags) (*regexp.Regexp, error) {
	return c.GetTagged(source, flags, "catalog")
}

// GetTagged is Get with an explicit provenance tag recorded on first
// insert. Provenance never participates in the cache key.
func (c *Cache) GetTagged(source string, flags Flags, provenance string) (*regexp.Regexp, error) {
	k := key{source: source, flags: flags}

	c.mu.RLock()
	if el, ok := c.entries[k]; ok {
		ent := el.Value.(*entry)
		ent.touch()
		c.mu.RUnlock()
		c.hits.Add(1)
		return ent.re, nil
	}
	c.mu.RUnlock()

	c.misses.Add(1)
	re, err := regexp.Compile(flags.expr(source))
	if err != nil {
		c.compileErrors.Add(1)
		return nil, gate.E(gate.KindInvalidPattern, "regexcache.compile", err).WithPath(source)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[k]; ok {
		// Lost the compile race; keep the resident matcher so every
		// caller sees one object per key.
		ent := el.Value.(*entry)
		ent.touch()
		return ent.re, nil
	}
	ent := &entry{
		source:     source,
		flags:      flags,
		re:         re,
		provenance: provenance,
		cost:       entryOverheadBytes + bytesPerSourceByte*int64(len(source)),
	}
	ent.touch()
	c.entries[k] = c.lru.PushFront(ent)
	c.mem += ent.cost
	for len(c.entries) > c.maxEntries || c.mem > c.maxBytes {
		if !c.evictLocked() {
			break
		}
	}
	return re, nil
}

// Lookup returns the cached entry without compiling on miss.
func (c *Cache) Lookup(source string, flags Flags) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	el, ok := c.entries[key{source: source, flags: flags}]
	if !ok {
		return Entry{}, false
	}
	ent := el.Value.(*entry)
	return Entry{Source: ent.source, Flags: ent.flags, Regexp: ent.re, Provenance: ent.provenance}, true
}

// evictLocked removes the stalest entry near the list tail. Caller holds
// the write lock. Returns false when there is nothing to evict.
func (c *Cache) evictLocked() bool {
	if c.lru.Len() == 0 {
		return false
	}
	victim := c.lru.Back()
	oldest := victim.Value.(*entry).lastAccess.Load()
	probe := victim
	for i := 1; i < evictSample && probe != nil; i++ {
		probe = probe.Prev()
		if probe == nil {
			break
		}
		if ts := probe.Value.(*entry).lastAccess.Load(); ts < oldest {
			victim, oldest = probe, ts
		}
	}
	ent := victim.Value.(*entry)
	delete(c.entries, key{source: ent.source, flags: ent.flags})
	c.lru.Remove(victim)
	c.mem -= ent.cost
	c.evictions.Add(1)
	return true
}

// Stats returns a snapshot of size and counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	size, mem := len(c.entries), c.mem
	c.mu.RUnlock()
	return Stats{
		Size:          size,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
		MemoryBytes:   mem,
		CompileErrors: c.compileErrors.Load(),
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry and resets counters. Intended for tests and
// explicit catalog reloads.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[key]*list.Element)
	c.lru = list.New()
	c.mem = 0
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.compileErrors.Store(0)
}
