// Package config loads and validates the YAML document that configures a
// worldcore host process: tick rate, scheduler pool size, storage paths,
// generation parameters and the optional periodic snapshot/mirror
// settings. The document is validated against an embedded JSON Schema
// before being decoded into a typed Config, so a malformed operator config
// fails at boot with a pointed error rather than surfacing as a confusing
// nil-pointer or zero-value bug deep in the tick loop.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SchedulerConfig sizes the worker pool internal/scheduler runs load/save
// jobs on.
type SchedulerConfig struct {
	Workers int `json:"workers"`
}

// StorageConfig names the on-disk layout: one directory per dimension
// under WorldDir, plus the sqlite side-index path.
type StorageConfig struct {
	WorldDir    string   `json:"world_dir"`
	Dimensions  []string `json:"dimensions"`
	IndexDBPath string   `json:"index_db_path"`
}

// WorldGenConfig tunes the reference generator's terrain and ore
// distribution.
type WorldGenConfig struct {
	Seed                            int64 `json:"seed"`
	BiomeRegionSize                 int   `json:"biome_region_size"`
	SpawnClearRadius                int   `json:"spawn_clear_radius"`
	OreClusterProbScalePermille     int   `json:"ore_cluster_prob_scale_permille"`
	TerrainClusterProbScalePermille int   `json:"terrain_cluster_prob_scale_permille"`
	SprinkleStonePermille           int   `json:"sprinkle_stone_permille"`
	SprinkleDirtPermille            int   `json:"sprinkle_dirt_permille"`
	SprinkleLogPermille             int   `json:"sprinkle_log_permille"`
}

// SnapshotConfig controls the periodic whole-world manifest written by
// internal/worldsnapshot.
type SnapshotConfig struct {
	EveryTicks uint64 `json:"every_ticks"`
	Retain     int    `json:"retain"`
}

// SaveConfig controls the periodic autosave sweep: every AutosaveIntervalTicks
// ticks the host requests a save of every resident region rather
// than relying solely on eviction-triggered saves.
type SaveConfig struct {
	AutosaveIntervalTicks uint64 `json:"autosave_interval_ticks"`
	UseCurrentThread      bool   `json:"use_current_thread"`
}

// MirrorConfig, if present, enables internal/regionmirror's off-site
// upload of saved region files. A nil Mirror in Config means the feature
// is disabled.
type MirrorConfig struct {
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Prefix          string `json:"prefix"`
	Workers         int    `json:"workers"`
	QueueCapacity   int    `json:"queue_capacity"`
	EnqueueWaitMs   int    `json:"enqueue_wait_ms"`
}

// Config is the fully validated, typed form of a worldcore host's YAML
// configuration document.
type Config struct {
	WorldID          string          `json:"world_id"`
	TicksPerSecond   int             `json:"tps"`
	UnloadGraceTicks uint64          `json:"unload_grace_ticks"`
	Scheduler        SchedulerConfig `json:"scheduler"`
	Storage          StorageConfig   `json:"storage"`
	WorldGen         WorldGenConfig  `json:"worldgen"`
	Snapshot         SnapshotConfig  `json:"snapshot"`
	Save             SaveConfig      `json:"save"`
	Mirror           *MirrorConfig   `json:"mirror,omitempty"`
}

// Load reads the YAML file at path, validates it against the embedded
// config schema, and decodes it into a Config.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(raw)
}

// Parse validates and decodes a YAML document already read into memory,
// for callers embedding configuration (tests, single-binary deployments)
// that don't want to round-trip through a file.
func Parse(raw []byte) (Config, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	generic = normalizeForJSON(generic)

	doc, err := json.Marshal(generic)
	if err != nil {
		return Config{}, fmt.Errorf("config: re-encode as json: %w", err)
	}

	if err := Validate(doc); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := json.NewDecoder(bytes.NewReader(doc)).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// normalizeForJSON recursively converts map[string]any keys and nested
// values produced by yaml.v3 into shapes encoding/json accepts uniformly.
// yaml.v3 already decodes mappings as map[string]any (unlike v2's
// map[interface{}]interface{}), but nested slices of maps still need the
// same treatment applied recursively.
func normalizeForJSON(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[k] = normalizeForJSON(val)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, val := range vv {
			out[i] = normalizeForJSON(val)
		}
		return out
	default:
		return vv
	}
}
