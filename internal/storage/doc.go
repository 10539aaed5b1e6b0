// Package storage persists greeting schedules.
//
// The only backend is a single JSON object file mapping user ids to "HH:MM".
// Reads are tolerant: missing, empty or malformed files load as no schedules.
// Writes rewrite the whole file through a temp file and rename.
package storage
