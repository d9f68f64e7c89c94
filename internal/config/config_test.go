package config

import "testing"

const validYAML = `
world_id: overworld-demo
tps: 20
unload_grace_ticks: 600
scheduler:
  workers: 4
storage:
  world_dir: /var/lib/worldcore
  dimensions: ["overworld", "caves"]
  index_db_path: /var/lib/worldcore/index.db
worldgen:
  seed: 1337
  biome_region_size: 8
  spawn_clear_radius: 16
  ore_cluster_prob_scale_permille: 1000
  terrain_cluster_prob_scale_permille: 1000
  sprinkle_stone_permille: 40
  sprinkle_dirt_permille: 60
  sprinkle_log_permille: 15
snapshot:
  every_ticks: 12000
  retain: 5
save:
  autosave_interval_ticks: 6000
  use_current_thread: false
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.WorldID != "overworld-demo" {
		t.Fatalf("WorldID = %q, want overworld-demo", cfg.WorldID)
	}
	if cfg.TicksPerSecond != 20 {
		t.Fatalf("TicksPerSecond = %d, want 20", cfg.TicksPerSecond)
	}
	if cfg.Scheduler.Workers != 4 {
		t.Fatalf("Scheduler.Workers = %d, want 4", cfg.Scheduler.Workers)
	}
	if len(cfg.Storage.Dimensions) != 2 || cfg.Storage.Dimensions[0] != "overworld" {
		t.Fatalf("Storage.Dimensions = %v", cfg.Storage.Dimensions)
	}
	if cfg.WorldGen.Seed != 1337 {
		t.Fatalf("WorldGen.Seed = %d, want 1337", cfg.WorldGen.Seed)
	}
	if cfg.Snapshot.Retain != 5 {
		t.Fatalf("Snapshot.Retain = %d, want 5", cfg.Snapshot.Retain)
	}
	if cfg.Mirror != nil {
		t.Fatalf("expected no mirror config, got %+v", cfg.Mirror)
	}
}

func TestParseWithMirrorConfig(t *testing.T) {
	yaml := validYAML + `
mirror:
  endpoint: https://accountid.r2.cloudflarestorage.com
  bucket: worldcore-backups
  access_key_id: AKIAEXAMPLE
  secret_access_key: shh
  prefix: worlds/overworld-demo
  workers: 2
  queue_capacity: 512
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mirror == nil {
		t.Fatalf("expected a mirror config")
	}
	if cfg.Mirror.Bucket != "worldcore-backups" || cfg.Mirror.Workers != 2 {
		t.Fatalf("unexpected mirror config: %+v", cfg.Mirror)
	}
}

func TestParseRejectsMissingRequiredField(t *testing.T) {
	// world_id is required by the schema.
	yaml := `
tps: 20
scheduler:
  workers: 1
storage:
  world_dir: /tmp/x
  dimensions: ["overworld"]
worldgen:
  seed: 1
`
	if _, err := Parse([]byte(yaml)); err == nil {
		t.Fatalf("expected a validation error for a missing world_id")
	}
}

func TestParseRejectsOutOfRangeTPS(t *testing.T) {
	yaml := `
world_id: x
tps: 0
scheduler:
  workers: 1
storage:
  world_dir: /tmp/x
  dimensions: ["overworld"]
worldgen:
  seed: 1
`
	if _, err := Parse([]byte(yaml)); err == nil {
		t.Fatalf("expected a validation error for tps: 0")
	}
}

func TestParseRejectsEmptyDimensionsList(t *testing.T) {
	yaml := `
world_id: x
tps: 20
scheduler:
  workers: 1
storage:
  world_dir: /tmp/x
  dimensions: []
worldgen:
  seed: 1
`
	if _, err := Parse([]byte(yaml)); err == nil {
		t.Fatalf("expected a validation error for an empty dimensions list")
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("world_id: [this is not: valid")); err == nil {
		t.Fatalf("expected an error for malformed yaml")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load("/nonexistent/worldcore.yaml"); err == nil {
		t.Fatalf("expected an error reading a missing config file")
	}
}
