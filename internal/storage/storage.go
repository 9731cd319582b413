// Package storage is the disk manager (§4.C): it maps piece indices to file
// byte ranges using the torrent's file layout, performs range-bounded reads
// and writes, and tracks per-file priority.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vinayydv3695/SeedCore/internal/metainfo"
)

// Priority is a per-file download priority; pieces overlapping only
// Skip-priority files are excluded from selection (§4.B, §4.C).
type Priority int

const (
	Skip Priority = iota
	Low
	Normal
	High
)

// FileSlot is one file within the torrent's save path.
type FileSlot struct {
	AbsolutePath string
	RelPath      string
	Size         int64
	offset       int64 // byte offset of this file within the concatenated torrent data

	mu            sync.Mutex
	priority      Priority
	bytesComplete int64
}

// Priority returns the file's current download priority.
func (f *FileSlot) Priority() Priority {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.priority
}

// SetPriority updates the file's priority live (§4.C).
func (f *FileSlot) SetPriority(p Priority) {
	f.mu.Lock()
	f.priority = p
	f.mu.Unlock()
}

// BytesComplete returns the number of bytes verified-complete for this file,
// never exceeding Size (invariant 1, spec.md §3).
func (f *FileSlot) BytesComplete() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bytesComplete
}

func (f *FileSlot) addComplete(n int64) {
	f.mu.Lock()
	f.bytesComplete += n
	if f.bytesComplete > f.Size {
		f.bytesComplete = f.Size
	}
	f.mu.Unlock()
}

// span is a byte range within one FileSlot that a piece overlaps.
type span struct {
	file        *FileSlot
	fileOffset  int64
	pieceOffset int64
	length      int64
}

// Storage owns one open *os.File handle per torrent file (created lazily on
// first write) and performs piece-sized, range-bounded I/O against them.
type Storage struct {
	dest  string
	files []*FileSlot

	mu      sync.Mutex
	handles map[*FileSlot]*os.File

	pieceLength int64
	totalLength int64
}

// New lays out files under dest according to the metainfo, without touching
// the filesystem yet (files are created lazily, sparse by default per §4.C).
func New(dest string, info *metainfo.Info) (*Storage, error) {
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return nil, err
	}
	files := make([]*FileSlot, len(info.Files))
	var offset int64
	for i, mf := range info.Files {
		rel := filepath.Join(mf.Path...)
		files[i] = &FileSlot{
			AbsolutePath: filepath.Join(dest, rel),
			RelPath:      rel,
			Size:         mf.Length,
			offset:       offset,
			priority:     Normal,
		}
		offset += mf.Length
	}
	return &Storage{
		dest:        dest,
		files:       files,
		handles:     make(map[*FileSlot]*os.File),
		pieceLength: info.PieceLength,
		totalLength: offset,
	}, nil
}

// Dest returns the save-path root.
func (s *Storage) Dest() string { return s.dest }

// Files returns the file slots in torrent order.
func (s *Storage) Files() []*FileSlot { return s.files }

// spansForPiece computes the (file, offsets, length) spans a piece overlaps.
func (s *Storage) spansForPiece(index int, length uint32) []span {
	pieceStart := int64(index) * s.pieceLength
	pieceEnd := pieceStart + int64(length)
	var spans []span
	for _, f := range s.files {
		fStart := f.offset
		fEnd := f.offset + f.Size
		if fEnd <= pieceStart || fStart >= pieceEnd {
			continue
		}
		start := max64(pieceStart, fStart)
		end := min64(pieceEnd, fEnd)
		spans = append(spans, span{
			file:        f,
			fileOffset:  start - fStart,
			pieceOffset: start - pieceStart,
			length:      end - start,
		})
	}
	return spans
}

func (s *Storage) handle(f *FileSlot, writable bool) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[f]; ok {
		return h, nil
	}
	if err := os.MkdirAll(filepath.Dir(f.AbsolutePath), 0o750); err != nil {
		return nil, err
	}
	// Read-write even for reads: the handle is cached and later writes
	// reuse it.
	flag := os.O_RDWR
	if writable {
		flag |= os.O_CREATE
	}
	h, err := os.OpenFile(f.AbsolutePath, flag, 0o640)
	if err != nil {
		return nil, err
	}
	s.handles[f] = h
	return h, nil
}

// WritePiece writes piece bytes across every file it spans and marks each
// touched file's completed byte count. It does not touch the bitfield or
// perform hash verification; callers (internal/piecewriter) verify first.
func (s *Storage) WritePiece(index int, length uint32, data []byte) error {
	if int64(len(data)) != int64(length) {
		return fmt.Errorf("storage: piece %d: expected %d bytes, got %d", index, length, len(data))
	}
	for _, sp := range s.spansForPiece(index, length) {
		if sp.file.Priority() == Skip {
			continue
		}
		h, err := s.handle(sp.file, true)
		if err != nil {
			return err
		}
		if _, err := h.WriteAt(data[sp.pieceOffset:sp.pieceOffset+sp.length], sp.fileOffset); err != nil {
			return err
		}
		sp.file.addComplete(sp.length)
	}
	return nil
}

// ReadPiece reads length bytes for piece index, spanning as many files as
// necessary, to serve an upload request or hash verification.
func (s *Storage) ReadPiece(index int, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	for _, sp := range s.spansForPiece(index, length) {
		h, err := s.handle(sp.file, false)
		if os.IsNotExist(err) {
			continue // not-yet-written region reads as zero
		}
		if err != nil {
			return nil, err
		}
		if _, err := h.ReadAt(buf[sp.pieceOffset:sp.pieceOffset+sp.length], sp.fileOffset); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// ReadRange reads an arbitrary byte range of a single piece for an upload
// request (begin/length within the piece), reusing ReadPiece's span walk.
func (s *Storage) ReadRange(index int, begin, length uint32) ([]byte, error) {
	full, err := s.ReadPiece(index, begin+length)
	if err != nil {
		return nil, err
	}
	return full[begin : begin+length], nil
}

// Close closes every open file handle.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, h := range s.handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.handles = make(map[*FileSlot]*os.File)
	return firstErr
}

// PieceSkipped reports whether every byte of the piece falls within
// Skip-priority files (§4.B selection exclusion rule).
func (s *Storage) PieceSkipped(index int, length uint32) bool {
	spans := s.spansForPiece(index, length)
	if len(spans) == 0 {
		return false
	}
	for _, sp := range spans {
		if sp.file.Priority() != Skip {
			return false
		}
	}
	return true
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
