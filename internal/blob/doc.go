// Package blob converts binary payloads (photos, audio) between a live
// handle and a portable byte form.
//
// # Overview
//
// A captured photo or recording starts life as a live handle: something that
// can be opened and read, such as a temp file from the camera. Before it is
// stored it is encoded into a byte buffer, which from then on is the source
// of truth. Exports and backups carry the bytes as base64 text inside data
// URIs.
//
// Ref hides which of the two shapes backs a payload. Consumers call
// Ref.Resolve to get something playable, or nil when nothing is available.
//
// # Error Handling
//
// Reading a live handle can fail; such failures are returned as *EncodeError
// so callers can tell them apart with errors.As. Decode and Resolve never
// fail: a missing or empty payload is a normal state and yields nil.
package blob
