// Package ir provides the foundational types for fieldflow.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Ids (FieldID, NodeID) are positive, never reused, and 0 means "none"
//   - Document values are a sealed union (Value) dispatched by type switch
//   - A nil Path means "removed"; Path round-trips through its string form
//   - Content hashes use canonical JSON with domain separation
//   - All JSON tags use snake_case
package ir
