// Package credstore persists the external chat-network session's
// authentication material as opaque blobs in SQLite.
package credstore
