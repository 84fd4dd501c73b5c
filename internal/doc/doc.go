// Package doc navigates and edits document trees built from ir.Value.
//
// Paths (ir.Path) may contain wildcards; Expand resolves them against a
// concrete document into Keypaths, recording which index each wildcard took
// so that a transform reading items[].a can write items[].b element by
// element (Bind).
//
// Set and Delete mutate containers in place. The executor therefore works on
// a deep Clone of each input document and never touches caller-owned trees.
package doc
