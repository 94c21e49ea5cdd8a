// Package walstore keeps an in-memory, ID-keyed collection durable on a
// single snapshot document file.
//
// Every mutation runs under the store's exclusive lock and is first appended
// as a frame to a "<snapshot>.wal" sidecar. A [Scheduler] then coalesces all
// mutations of one waiting window into a single full snapshot rewrite, after
// which the sidecar is deleted. If the process stops before that rewrite, the
// next [Open] replays the sidecar on top of the last snapshot, writes a fresh
// snapshot and deletes the sidecar.
//
// A waiting time of zero disables batching: every mutation rewrites the
// snapshot before returning and no sidecar is ever created.
//
// [MapStore] is the ready-made collection facade. Custom collections
// implement [Hooks] and drive [Store] through [Store.Mutate].
package walstore
