// Package storage writes relayed form submissions to the document store.
//
// Every message gets its own connection: Writer.Save connects, decodes the
// body with package form, inserts one document stamped with the server time
// and disconnects. Failures are returned as typed errors so the caller can
// log them; nothing is retried.
package storage
