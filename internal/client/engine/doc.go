// Package engine is the client-side sync state machine. A Session accepts
// uploads and deletions from the host, persists them in the local database,
// and pushes committed batches to the server under the account lock. It then
// pulls server-side changes, asking the host to resolve conflicts and to
// acknowledge downloads. Every step is re-derived from persisted state, so a
// session over the same database resumes where a previous one stopped.
package engine
