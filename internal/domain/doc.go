// Package domain contains the core entities of the document-processing
// pipeline: projects, documents, columns, processor runs, and prompt runs.
// Entities validate themselves; persistence and scheduling live elsewhere.
package domain
