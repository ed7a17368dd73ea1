// Package cli provides the interactive sync client command-line tool.
//
// It wires configuration, the local SQLite state, the gRPC server client and
// a sync engine session, then runs a REPL over them. Engine notifications
// (mode changes, events, downloads, deletions and conflicts) are printed as
// they arrive by a console delegate.
//
// Key features:
//   - Queue uploads of files or typed text, and deletions
//   - Commit batches and trigger sync passes
//   - Inspect local file status and the engine mode
//   - Resolve conflicts by policy or by hand
//   - Reset from error modes and rewrite local metadata for debugging
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
