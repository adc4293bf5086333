// Package capture holds the daemon's in-memory telemetry state.
//
// Five bounded streams are kept: console entries, network records, user
// interactions, DOM snapshots and screenshots. Network lifecycle events are
// merged into one record per request id by NetworkTable. Network records and
// console entries also age out after NetworkWindow; Sweep enforces that.
//
// Every stream evicts its oldest entry when full. The Capture type also owns
// the logging flag and the most recent report draft, and can produce a
// consistent Snapshot of all of it for persistence and prompt assembly.
package capture
