package ir

// Version constants for the snapshot schema and engine.
const (
	// SnapshotVersion is the serialized history schema version.
	SnapshotVersion = "1"

	// EngineVersion is the verdant engine version.
	EngineVersion = "0.1.0"
)
