// Package piecewriter hash-verifies an assembled piece and, on success,
// writes it to disk — the one path that is allowed to flip a bitfield bit,
// generalized from the teacher's piecewriter.PieceWriter (referenced in
// session/torrent.go's pieceWriterResultC handling).
package piecewriter

import (
	"crypto/sha1" //nolint:gosec // BEP 3 piece hashes are SHA-1 by specification.

	"github.com/vinayydv3695/SeedCore/internal/errkind"
	"github.com/vinayydv3695/SeedCore/internal/metainfo"
	"github.com/vinayydv3695/SeedCore/internal/storage"
)

// Result is sent back to the engine's run loop once a write attempt
// finishes, successfully or not.
type Result struct {
	PieceIndex int
	Error      error // *errkind.Error with Kind == HashMismatch on verify failure
}

// Writer verifies and persists pieces for one torrent's storage.
type Writer struct {
	storage *storage.Storage
	info    *metainfo.Info
}

func New(sto *storage.Storage, info *metainfo.Info) *Writer {
	return &Writer{storage: sto, info: info}
}

// Write hashes data against the expected piece hash and, on a match, writes
// it to disk. On mismatch it returns a HashMismatch error and performs no
// write, so the bitfield is never left in a partial-verified state
// (invariant 2, spec.md §3; §4.C).
func (w *Writer) Write(index int, data []byte) Result {
	sum := sha1.Sum(data) //nolint:gosec
	want := w.info.PieceHash(index)
	if sum != want {
		return Result{PieceIndex: index, Error: errkind.New(errkind.HashMismatch, "piece hash mismatch")}
	}
	if err := w.storage.WritePiece(index, uint32(len(data)), data); err != nil {
		return Result{PieceIndex: index, Error: errkind.Wrap(errkind.IoFailure, "writing piece to disk", err)}
	}
	return Result{PieceIndex: index}
}

// Run processes write jobs from jobsC until it's closed, sending each
// Result to resultC. It is meant to run in its own goroutine so disk writes
// never block the engine's run loop (§5).
func Run(w *Writer, jobs <-chan Job, resultC chan<- Result) {
	for j := range jobs {
		resultC <- w.Write(j.PieceIndex, j.Data)
	}
}

// Job is one write request.
type Job struct {
	PieceIndex int
	Data       []byte
}
