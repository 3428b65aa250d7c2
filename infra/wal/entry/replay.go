package entry

import (
	"fmt"
)

type ReplayHandler func(*Record) error

// Replay feeds every record in dir to fn in sequence order and returns the
// last sequence seen. It can run against a journal that is being written.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	segs, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	for _, idx := range segs {
		_, _, err := scanSegment(segmentPath(dir, idx), func(rec *Record) error {
			if rec.Seq <= lastSeq {
				return fmt.Errorf("journal: non-monotonic seq %d after %d", rec.Seq, lastSeq)
			}
			lastSeq = rec.Seq
			return fn(rec)
		})
		if err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}
