// Package artifact contains implementations of core.ArtifactStore, the store
// for documents produced by runs.
//
// The interface lives in the core package so the roundtable façade and the
// HTTP server depend on the contract only. InMemoryStore suits tests and
// single-process servers; DirStore keeps one directory per run on disk.
package artifact
