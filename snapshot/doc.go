// Package snapshot captures a read-only view of a session's books and
// persists it with encoding/gob. A view is taken under the service lock
// and shares no memory with the live books.
package snapshot
