package entry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"matchbook/infra/wal"
)

const segmentPattern = "segment-*.wal"

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
}

// listSegments returns segment indexes in ascending order.
func listSegments(dir string) ([]int, error) {
	files, err := filepath.Glob(filepath.Join(dir, segmentPattern))
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(files))
	for _, f := range files {
		base := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(f), "segment-"), ".wal")
		i, err := strconv.Atoi(base)
		if err != nil {
			continue
		}
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

type segment struct {
	index  int
	file   *os.File
	writer *bufio.Writer
	offset int64
}

func openSegment(dir string, index int) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{
		index:  index,
		file:   f,
		writer: bufio.NewWriterSize(f, 64<<10),
		offset: info.Size(),
	}, nil
}

func (s *segment) append(b []byte) error {
	n, err := s.writer.Write(b)
	s.offset += int64(n)
	return err
}

func (s *segment) flush() error {
	return s.writer.Flush()
}

func (s *segment) sync() error {
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *segment) close() error {
	err := s.sync()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// scanSegment reads every frame of path. It returns the highest sequence
// seen and the length of the valid prefix; a torn frame at the end is not
// an error.
func scanSegment(path string, fn func(*Record) error) (maxSeq uint64, valid int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, n, err := readFrame(r)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return maxSeq, valid, nil
		case errors.Is(err, wal.ErrCorrupt):
			return maxSeq, valid, fmt.Errorf("%s at offset %d: %w", filepath.Base(path), valid, err)
		default:
			return maxSeq, valid, err
		}

		valid += n
		if rec.Seq > maxSeq {
			maxSeq = rec.Seq
		}
		if fn != nil {
			if err := fn(rec); err != nil {
				return maxSeq, valid, err
			}
		}
	}
}
