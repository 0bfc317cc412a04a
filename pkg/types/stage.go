package types

import "fmt"

// Stage identifies a resumable pipeline stage whose output is snapshotted.
// Each stage carries its own typed column list; the set of stages is closed.
type Stage interface {
	// Name is the stage tag written into snapshot headers and object paths
	Name() string

	// Schema is the column layout of the stage's snapshot
	Schema() Schema

	isStage()
}

// RawStage holds events exactly as fetched from the event source.
type RawStage struct{}

// PreprocessStage holds cleaned and reconciled events.
type PreprocessStage struct{}

var (
	StageRaw        Stage = RawStage{}
	StagePreprocess Stage = PreprocessStage{}
)

func (RawStage) Name() string { return "raw" }

func (RawStage) Schema() Schema {
	return Schema{
		Name:    "raw",
		Version: 1,
		Columns: []ColumnDef{
			{Name: "event", Type: "TEXT"},
			{Name: "time", Type: "TIMESTAMP"},
			{Name: "unique_visitor_id", Type: "TEXT"},
			{Name: "ha_user_id", Type: "TEXT", Nullable: true},
			{Name: "browser", Type: "TEXT", Nullable: true},
			{Name: "os", Type: "TEXT", Nullable: true},
			{Name: "country_code", Type: "TEXT"},
		},
	}
}

func (RawStage) isStage() {}

func (PreprocessStage) Name() string { return "preprocess" }

func (PreprocessStage) Schema() Schema {
	return Schema{
		Name:    "preprocess",
		Version: 1,
		Columns: []ColumnDef{
			{Name: "event", Type: "TEXT"},
			{Name: "time", Type: "TIMESTAMP"},
			{Name: "unique_visitor_id", Type: "TEXT"},
			{Name: "ha_user_id", Type: "TEXT", Nullable: true},
			{Name: "browser", Type: "TEXT", Nullable: true},
			{Name: "os", Type: "TEXT", Nullable: true},
			{Name: "country", Type: "TEXT"},
			{Name: "device_type", Type: "TEXT"},
		},
	}
}

func (PreprocessStage) isStage() {}

// Stages lists every stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageRaw, StagePreprocess}
}

// ParseStage resolves a stage by name.
func ParseStage(name string) (Stage, error) {
	for _, s := range Stages() {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown stage %q (must be raw or preprocess)", name)
}
