// Package dirtree describes the tree of files and directories that
// DirectoryWalker walks and CarPacker packs: a DirectoryItem tree whose
// file ids are the shared cursor contract between the two.
package dirtree

import (
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
)

// Kind distinguishes a leaf file from an internal directory node.
type Kind int

const (
	File Kind = iota
	Dir
)

// Item is one node of the tree. Name is the display name carried onto the
// UnixFS link to this node's parent; Path is the filesystem path to read
// bytes from (meaningful only for Kind == File); ID is the pre-order
// file id (0 for directories, "no file context"); Children holds the
// pre-order-ordered subtree for Kind == Dir.
type Item struct {
	Kind     Kind
	Name     string
	Path     string
	ID       uint64
	Children []Item
}

// Filter decides whether an entry is included in the walk, and — for a
// directory — whether its subtree is visited at all. Supplements the
// spec's bare DirectoryWalker contract with the original source's
// from_path filter callback.
type Filter func(name string, isFile bool) bool

// Build walks root and returns its pre-order DirectoryItem tree plus the
// total number of files assigned an id (ids 1..count). Directory entries
// are sorted by name for deterministic, platform-independent ordering —
// the root CID must not depend on a particular OS's readdir order, which
// is a testable property of CarPacker.
func Build(root string, filter Filter) ([]Item, uint64, error) {
	if filter == nil {
		filter = func(string, bool) bool { return true }
	}
	var id uint64
	items, err := build(root, &id, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, id, nil
}

func build(path string, id *uint64, filter Filter) ([]Item, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		isFile := !entry.IsDir()
		if !filter(name, isFile) {
			continue
		}
		childPath := filepath.Join(path, name)
		if entry.IsDir() {
			children, err := build(childPath, id, filter)
			if err != nil {
				return nil, err
			}
			items = append(items, Item{Kind: Dir, Name: name, Children: children})
		} else {
			*id++
			items = append(items, Item{Kind: File, Name: name, Path: childPath, ID: *id})
		}
	}
	return items, nil
}

// Cursor is the "current file id" cell shared between DirectoryWalker
// (writer) and CarPacker (reader). Both run on the same producer
// goroutine in practice, but it is implemented with an atomic word so
// neither side needs to reason about visibility.
type Cursor struct {
	id atomic.Uint64
}

func NewCursor() *Cursor { return &Cursor{} }

func (c *Cursor) Set(id uint64) { c.id.Store(id) }

func (c *Cursor) Get() uint64 { return c.id.Load() }
