// Package memory contains core.MemoryStore implementations: an in-memory
// store and a JSON file store here, network backends in sub-packages (redis,
// postgres, sqlite, mongo). Depend on core.MemoryStore in your code and
// select an implementation at wiring time.
//
// Every store persists the whole snapshot and must round-trip it exactly.
package memory
