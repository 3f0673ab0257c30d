// Package vmm pages KV-cache memory into pre-reserved device virtual ranges on
// demand. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: Config and package defaults; NewWithConfig applies defaults.
//   - types.go: handles, addresses, mapping key/value, allocation properties.
//   - backend.go: the physical paging Backend capability and its selection.
//   - errors.go: fatal error type and helpers (IsFatal, sentinel errors).
//   - init.go: Init negotiates granularity and selects the backend.
//   - pool.go: Reserve grows the physical page pool.
//   - sizing.go: Sizer and the default pool sizing function.
//   - table.go: ordered mapping table.
//   - mapper.go: Map binds a K/V page pair under the manager lock.
//   - teardown.go: Cleanup reverses every mapping and releases memory.
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus collectors.
//   - status_report.go: Status/Mappings reporting for the HTTP layer.
//
// Errors returned by Init, Reserve and Map are either nil or fatal: callers
// must treat an IsFatal error as unrecoverable and stop the worker. Cleanup
// never fails; it logs and counts warnings instead.
//
// A Manager owns the state of exactly one device. Map is safe for concurrent
// use; Init, Reserve and Cleanup must be serialized by the caller, and Cleanup
// requires that no Map call is in flight.
package vmm
