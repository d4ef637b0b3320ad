// Package cache defines the disk-backed response store responsible for
// translating gateway requests into StoragePath/<generation>/<method>/<path>
// files. Every entry persists the complete response (status, headers, body)
// as a body file plus a .meta JSON sidecar, written atomically via temp file
// + rename. The store also exposes generation-level operations so the
// activation phase can garbage-collect superseded cache generations without
// knowing the disk layout.
package cache
