// Package upload implements a chunked resumable upload assembler: a session
// that accrues byte chunks under a bitmap, and on completion streams them in
// index order into the blob store while computing the content digest.
package upload

import (
	"time"
)

// Session is the durable record of an in-progress chunked upload, matching
// the `uploads` table layout.
type Session struct {
	ID             string
	PrincipalID    string
	Filename       string
	DeclaredSize   int64
	DeclaredType   string
	ChunkSize      int64
	TotalChunks    int
	ReceivedBitmap []bool // one entry per chunk index
	ChunkLengths   []int64
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// receivedCount returns how many chunks have been accepted so far.
func (s *Session) receivedCount() int {
	n := 0
	for _, b := range s.ReceivedBitmap {
		if b {
			n++
		}
	}
	return n
}

// complete reports whether every chunk index has been received.
func (s *Session) complete() bool {
	for _, b := range s.ReceivedBitmap {
		if !b {
			return false
		}
	}
	return true
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// expectedChunkLen returns the expected byte length for chunk index i: ChunkSize
// for every index but the last, which may be shorter.
func (s *Session) expectedChunkLen(index int) int64 {
	if index == s.TotalChunks-1 {
		rem := s.DeclaredSize - int64(index)*s.ChunkSize
		if rem > 0 && rem < s.ChunkSize {
			return rem
		}
	}
	return s.ChunkSize
}
