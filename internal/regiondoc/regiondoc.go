// Package regiondoc implements the on-disk region file format: a
// gzip-compressed tagged document with a single root mapping, written with
// a temp-file-and-rename safe write so a crash mid-write never corrupts an
// existing file.
package regiondoc

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// SliceDoc is the serialised form of one slice's dense arrays.
type SliceDoc struct {
	SX, SY int
	Tiles  []int32
	Walls  []int32
	Light  []uint8
}

// TileEntityDoc is the serialised form of one tile-entity. Payload is an
// opaque mapping; the core never interprets it beyond routing by Kind.
type TileEntityDoc struct {
	SX, SY         int
	LocalX, LocalY int
	Kind           string
	Payload        map[string]any
}

// EntityDoc is the serialised form of one entity bound to the region.
// Opaque beyond the discriminator, for the same reason as TileEntityDoc.
type EntityDoc struct {
	Kind    string
	Payload map[string]any
}

// StructureDoc is the serialised form of one queued structure.
type StructureDoc struct {
	Name             string
	SliceX, SliceY   int
	TileX, TileY     int
	OffsetX, OffsetY int
}

// Document is the root mapping stored in a region file.
type Document struct {
	Generated    bool
	Slices       []SliceDoc
	TileEntities []TileEntityDoc
	Entities     []EntityDoc
	Structures   []StructureDoc
}

// New returns an empty document with Generated left false, ready for
// saver steps to populate.
func New() *Document { return &Document{} }

func init() {
	// TileEntityDoc/EntityDoc payloads are opaque maps whose values arrive
	// as interface{}; gob needs every concrete type that can appear in one
	// registered up front so it can round-trip through the interface.
	gob.Register(int(0))
	gob.Register(int32(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(string(""))
	gob.Register(bool(false))
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// pathFor returns the file path for region (rx, ry) under dimDir.
func pathFor(dimDir string, rx, ry int) string {
	return filepath.Join(dimDir, fmt.Sprintf("r_%d_%d.region", rx, ry))
}

// PathFor returns the file path for region (rx, ry) under dimDir, for
// callers outside this package that need to name the file directly (an
// off-site mirror queuing it for upload, an operator inspecting disk use).
func PathFor(dimDir string, rx, ry int) string {
	return pathFor(dimDir, rx, ry)
}

// Exists reports whether a region file for (rx, ry) is present under
// dimDir, ignoring any stray .tmp file left behind by a crashed write.
func Exists(dimDir string, rx, ry int) bool {
	_, err := os.Stat(pathFor(dimDir, rx, ry))
	return err == nil
}

// Read loads the region document for (rx, ry) from dimDir. The second
// return value is false (with a nil error) when no file exists yet, which
// callers must treat as "nothing to load" rather than a failure.
func Read(dimDir string, rx, ry int) (*Document, bool, error) {
	path := pathFor(dimDir, rx, ry)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, false, fmt.Errorf("regiondoc: corrupt gzip header for %s: %w", path, err)
	}
	defer gz.Close()

	var doc Document
	if err := gob.NewDecoder(bufio.NewReader(gz)).Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("regiondoc: decode %s: %w", path, err)
	}
	return &doc, true, nil
}

// Write persists doc for (rx, ry) under dimDir using a safe write:
// contents land in "<file>.tmp" first, are flushed, and only then does a
// rename install them over the previous file (if any). A reader will never
// observe a partially-written region file.
func Write(dimDir string, rx, ry int, doc *Document) error {
	if err := os.MkdirAll(dimDir, 0o755); err != nil {
		return err
	}
	finalPath := pathFor(dimDir, rx, ry)
	tmpPath := finalPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(f)
	bw := bufio.NewWriterSize(gz, 64*1024)

	if err := gob.NewEncoder(bw).Encode(doc); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("regiondoc: encode %s: %w", finalPath, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("regiondoc: rename into place %s: %w", finalPath, err)
	}
	return nil
}
