package entry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"matchbook/infra/sequence"
)

type Config struct {
	Dir         string
	SegmentSize int64
	// SegmentDuration rotates segments by age as well. 0 disables.
	SegmentDuration time.Duration
	// SyncEveryAppend fsyncs after every record. Otherwise records are
	// flushed to the OS on append and synced on Sync, rotation and Close.
	SyncEveryAppend bool
}

// WAL is an append-only journal of CRC-framed records split into numbered
// segments. Sequences continue across reopen.
type WAL struct {
	mu         sync.Mutex
	cfg        Config
	current    *segment
	seq        *sequence.Sequencer
	lastRotate time.Time
	closed     bool
}

// Open continues the journal in cfg.Dir. A torn frame at the end of the
// last segment is truncated away; corruption anywhere else is an error.
func Open(cfg Config) (*WAL, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 64 << 20
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	segs, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	var lastSeq uint64
	index := 0
	for i, idx := range segs {
		path := segmentPath(cfg.Dir, idx)
		maxSeq, valid, err := scanSegment(path, nil)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		lastSeq = max(lastSeq, maxSeq)

		if i == len(segs)-1 {
			index = idx
			if err := truncateTail(path, valid); err != nil {
				return nil, err
			}
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}
	return &WAL{
		cfg:        cfg,
		current:    seg,
		seq:        sequence.New(lastSeq),
		lastRotate: time.Now(),
	}, nil
}

func truncateTail(path string, valid int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == valid {
		return nil
	}
	return os.Truncate(path, valid)
}

// Append writes one record and returns its sequence.
func (w *WAL) Append(t RecordType, data []byte) (uint64, error) {
	if len(data) > MaxPayload {
		return 0, fmt.Errorf("journal: payload of %d bytes exceeds %d", len(data), MaxPayload)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}

	rec := &Record{Type: t, Seq: w.seq.Next(), Time: time.Now(), Data: data}
	if err := w.current.append(encodeFrame(rec)); err != nil {
		return 0, err
	}
	if w.cfg.SyncEveryAppend {
		if err := w.current.sync(); err != nil {
			return 0, err
		}
	} else if err := w.current.flush(); err != nil {
		return 0, err
	}

	if w.shouldRotate() {
		if err := w.rotate(); err != nil {
			return rec.Seq, err
		}
	}
	return rec.Seq, nil
}

func (w *WAL) shouldRotate() bool {
	if w.current.offset >= w.cfg.SegmentSize {
		return true
	}
	return w.cfg.SegmentDuration > 0 && time.Since(w.lastRotate) >= w.cfg.SegmentDuration
}

func (w *WAL) rotate() error {
	if err := w.current.close(); err != nil {
		return err
	}
	seg, err := openSegment(w.cfg.Dir, w.current.index+1)
	if err != nil {
		return err
	}
	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// LastSeq is the sequence of the last appended record.
func (w *WAL) LastSeq() uint64 {
	return w.seq.Current()
}

func (w *WAL) Dir() string {
	return w.cfg.Dir
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.current.close()
}

// TruncateBefore removes closed segments whose records all have a
// sequence <= seq. The active segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) (int, error) {
	w.mu.Lock()
	active := w.current.index
	w.mu.Unlock()

	segs, err := listSegments(w.cfg.Dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, idx := range segs {
		if idx >= active {
			break
		}
		path := segmentPath(w.cfg.Dir, idx)
		maxSeq, _, err := scanSegment(path, nil)
		if err != nil || maxSeq > seq {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
