package ir

// Version constants for the IR and engine.
const (
	// IRVersion is the compiled-schema IR version.
	IRVersion = "1"

	// EngineVersion is the schemahost engine version.
	EngineVersion = "0.1.0"
)
