// Package core is the orchestration layer.  It composes the bridge,
// its transport and the opcode host into complete run modes and
// provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  bridge  →  capability  →  core  →  cmd (CLI)
package core

import "context"

// Mode represents a complete run of twbridge (a script or the
// console).  Each mode owns the bridge from the first connect to the
// final disconnect.
type Mode interface {
	Run(ctx context.Context) error
}
