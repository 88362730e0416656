package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

const recordHeaderLen = 12

// FileWAL is an append-only spill log of history records. Entry ids are
// monotonic across restarts and compactions.
type FileWAL struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.WALEntryID
	committed ports.WALEntryID
	sizeBytes int64
}

func NewFileWAL(dir string) (*FileWAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	wal := &FileWAL{
		path:     filepath.Join(dir, "wal.log"),
		metaPath: filepath.Join(dir, "wal.meta"),
	}
	if err := wal.openLocked(); err != nil {
		return nil, err
	}
	if err := wal.bootstrap(); err != nil {
		wal.file.Close()
		return nil, err
	}
	return wal, nil
}

func (w *FileWAL) openLocked() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.writer = bufio.NewWriterSize(f, 64<<10)
	return nil
}

func (w *FileWAL) bootstrap() error {
	if err := w.scanExisting(); err != nil {
		return err
	}
	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	_, err := w.file.Seek(0, io.SeekEnd)
	return err
}

// scanExisting finds the last complete entry and cuts off a torn tail.
func (w *FileWAL) scanExisting() error {
	rf, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.WALEntryID
	)
	for {
		id, body, err := readEntry(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("wal scan: %w", err)
		}
		offset += recordHeaderLen + int64(len(body))
		lastID = id
	}

	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.sizeBytes = offset
	w.nextID = lastID
	return nil
}

func (w *FileWAL) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("wal meta parse: %w", err)
	}
	w.committed = ports.WALEntryID(u)
	return nil
}

func (w *FileWAL) Append(r *domain.HistoryRecord) (ports.WALEntryID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, err := json.Marshal(r)
	if err != nil {
		return 0, err
	}
	id := w.nextID + 1
	if err := writeEntry(w.writer, id, b); err != nil {
		return 0, err
	}
	// spills are rare and must survive a crash, so no group commit
	if err := w.writer.Flush(); err != nil {
		return 0, err
	}

	w.nextID = id
	w.sizeBytes += int64(len(b) + recordHeaderLen)
	return id, nil
}

func (w *FileWAL) Iterate(from ports.WALEntryID, fn func(id ports.WALEntryID, r *domain.HistoryRecord) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	f, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		id, body, err := readEntry(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("corrupt WAL: %w", err)
		}
		if id < from {
			continue
		}
		var r domain.HistoryRecord
		if err := json.Unmarshal(body, &r); err != nil {
			return fmt.Errorf("corrupt WAL entry %d: %w", id, err)
		}
		if err := fn(id, &r); err != nil {
			return err
		}
	}
}

func (w *FileWAL) Commit(upto ports.WALEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if upto > w.committed {
		w.committed = upto
	}
	return w.persistMetaLocked()
}

// TruncateCommitted rewrites the log without its committed prefix and swaps
// it in with a rename.
func (w *FileWAL) TruncateCommitted() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}

	tmpPath := w.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	kept, err := w.copyUncommitted(tmp)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("wal compact: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return err
	}
	if err := w.openLocked(); err != nil {
		return err
	}
	w.sizeBytes = kept
	return nil
}

func (w *FileWAL) copyUncommitted(dst io.Writer) (int64, error) {
	src, err := os.Open(w.path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	reader := bufio.NewReader(src)
	bw := bufio.NewWriter(dst)
	var kept int64
	for {
		id, body, err := readEntry(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		if id <= w.committed {
			continue
		}
		if err := writeEntry(bw, id, body); err != nil {
			return 0, err
		}
		kept += recordHeaderLen + int64(len(body))
	}
	return kept, bw.Flush()
}

func (w *FileWAL) Stats() ports.WALStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		SizeBytes:         w.sizeBytes,
	}
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *FileWAL) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n", w.committed))
	return os.WriteFile(w.metaPath, data, 0o644)
}

// entry format: [8 bytes id][4 bytes len][len bytes json]
func writeEntry(bw *bufio.Writer, id ports.WALEntryID, body []byte) error {
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}
	_, err := bw.Write(body)
	return err
}

// readEntry returns io.EOF at a clean end and io.ErrUnexpectedEOF on a torn entry.
func readEntry(r *bufio.Reader) (ports.WALEntryID, []byte, error) {
	var hdr [recordHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	id := ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))
	body := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return id, body, nil
}

var _ ports.WAL = (*FileWAL)(nil)
