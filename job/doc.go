// Package job defines the job record, its state machine, the job
// registry store interface, and the lifecycle manager that owns every
// write to the registry.
//
// # Job Record
//
// A [Record] tracks one asynchronous operation. It progresses through:
//
//	pending → processing → completed
//	pending → processing → failed
//	pending → failed          (dispatch failed)
//
// No edge leaves a terminal state. CompletedAt is set exactly when the
// record becomes terminal and Error exactly when it fails.
//
// # Manager
//
// [Manager] creates, updates, reads, lists and expires records in one
// namespace. Writes to the same ID are serialized; an update for an ID
// that no longer exists (for example after expiry) is silently dropped.
// Expiry never runs on its own: callers invoke [Manager.Expire].
package job
