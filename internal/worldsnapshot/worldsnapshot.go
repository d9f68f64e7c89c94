// Package worldsnapshot writes and reads a periodic whole-world manifest: a
// small header of dimension/tick/seed metadata, framed the way the
// teacher's own world snapshot does (a JSON header line followed by a gob
// body, both wrapped in zstd), used for fast cold-start indexing rather
// than full world state (which lives in the per-region files under each
// dimension directory).
package worldsnapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// Header identifies the manifest format and the tick it was captured at.
type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// DimensionManifest records one dimension's generation seed and the set of
// regions resident at capture time, so a cold-start host can pre-warm the
// regions players were last standing in without scanning the whole world
// directory.
type DimensionManifest struct {
	Name            string      `json:"name"`
	Seed            int64       `json:"seed"`
	ResidentRegions []RegionRef `json:"resident_regions,omitempty"`
}

// RegionRef names a region by coordinate, for the resident-region list.
type RegionRef struct {
	RX int `json:"rx"`
	RY int `json:"ry"`
}

// Manifest is the whole-world snapshot payload: header plus one entry per
// dimension.
type Manifest struct {
	Header     Header              `json:"header"`
	Dimensions []DimensionManifest `json:"dimensions"`
}

// Write encodes snap to path as one zstd stream holding a JSON header line
// followed by a gob body. It truncates any existing file directly; unlike
// internal/regiondoc's region file codec, a torn write here only degrades
// cold-start warming (the region files themselves remain authoritative),
// so the extra temp-file-then-rename step is not worth the complexity.
func Write(path string, snap Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("worldsnapshot: gob encode: %w", err)
	}
	return nil
}

// Read decodes a Manifest previously written by Write.
func Read(path string) (Manifest, error) {
	var snap Manifest
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("worldsnapshot: reading header line: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("worldsnapshot: gob decode: %w", err)
	}
	return snap, nil
}

// PathFor returns the manifest path for a snapshot taken at the given tick,
// under worldDir/manifests/.
func PathFor(worldDir string, tick uint64) string {
	return filepath.Join(worldDir, "manifests", fmt.Sprintf("manifest_%020d.zst", tick))
}

// Retain deletes every manifest file under worldDir/manifests/ except the
// keep most recent ones, generalizing the teacher's season-archive rollover
// (which kept every season-boundary snapshot forever) to a simple bounded
// retention window, since worldcore has no season concept to hang
// retention off of.
func Retain(worldDir string, keep int) error {
	if keep <= 0 {
		return fmt.Errorf("worldsnapshot: keep must be positive, got %d", keep)
	}
	dir := filepath.Join(worldDir, "manifests")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // the zero-padded tick in the filename sorts chronologically

	if len(names) <= keep {
		return nil
	}
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
