// Package service holds the vectorflow domain: the workflows that embed,
// store, delete and sync vectors, and the operations clients call to
// submit and inspect jobs.
//
// Job submissions are a CreateRequest whose Payload is one of
// CreateVector, DeleteVectors, Bulk, ProcessFile or Sync. Every request
// is validated against an embedded JSON schema before a job record is
// written, so invalid requests never reach the registry.
//
// A creation job chains two sub-jobs through external.Call: embed-text,
// then store-vector. Both run on the engine's sub-job runner unless
// WithEmbedEngine or WithStoreEngine supplies another external.Engine.
// Job records follow their runs through an extension that moves each
// job to completed or failed when its run finishes.
package service
