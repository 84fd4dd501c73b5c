package ir

// Version constants for the definition format and engine.
const (
	// FormatVersion is the serialized definition format version.
	FormatVersion = "1"

	// EngineVersion is the fieldflow engine version.
	EngineVersion = "0.1.0"
)
