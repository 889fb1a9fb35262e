package align

import (
	"errors"
	"fmt"
)

// ErrCursorDesync is matched by every [*CursorDesyncError] via [errors.Is].
var ErrCursorDesync = errors.New("align: cursor desync")

// CursorDesyncError reports that the operation sequence and the token or
// side-channel arrays of an utterance disagree in length. Either a
// cursor-indexed read ran past the end of an array (Index >= Len), or the scan
// ended with entries left unread (Index < Len, see [Cursor.Finish]).
type CursorDesyncError struct {
	// UtteranceID is filled in by the extractor; the cursor does not know it.
	UtteranceID string

	// Cursor is the cursor state at the failing read. Cursor.Ix is the index of
	// the operation being processed.
	Cursor Cursor

	// Array names the array that was read, e.g. "hyp.tag".
	Array string

	// Len is the length of that array.
	Len int

	// Index is the index that was requested, or the first unread index.
	Index int
}

// Error implements the error interface.
func (e *CursorDesyncError) Error() string {
	id := e.UtteranceID
	if id == "" {
		id = "?"
	}
	if e.Index < e.Len {
		return fmt.Sprintf("align: cursor desync in utterance %s after %d operations: %s[%d:] left unread (len %d) [%s]",
			id, e.Cursor.Ix, e.Array, e.Index, e.Len, e.Cursor)
	}
	return fmt.Sprintf("align: cursor desync in utterance %s at operation %d: %s[%d] out of range (len %d) [%s]",
		id, e.Cursor.Ix, e.Array, e.Index, e.Len, e.Cursor)
}

// Is reports whether target is [ErrCursorDesync].
func (e *CursorDesyncError) Is(target error) bool {
	return target == ErrCursorDesync
}
