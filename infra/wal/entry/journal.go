package entry

import (
	"fmt"
	"time"

	"matchbook/domain/intent"
	"matchbook/infra/codec"
)

// Journal appends intents to a WAL.
type Journal struct {
	wal   *WAL
	codec codec.Codec
}

func NewJournal(w *WAL, c codec.Codec) *Journal {
	return &Journal{wal: w, codec: c}
}

func (j *Journal) Append(in intent.Intent) (uint64, error) {
	data, err := j.codec.EncodeIntent(in)
	if err != nil {
		return 0, err
	}
	t, err := recordTypeOf(in.Kind)
	if err != nil {
		return 0, err
	}
	return j.wal.Append(t, data)
}

func (j *Journal) Sync() error  { return j.wal.Sync() }
func (j *Journal) Close() error { return j.wal.Close() }

// ReplayIntents decodes every journaled intent in dir.
func ReplayIntents(dir string, c codec.Codec, fn func(seq uint64, at time.Time, in intent.Intent) error) (uint64, error) {
	return Replay(dir, func(rec *Record) error {
		in, err := c.DecodeIntent(rec.Data)
		if err != nil {
			return fmt.Errorf("record %d: %w", rec.Seq, err)
		}
		return fn(rec.Seq, rec.Time, in)
	})
}

func recordTypeOf(k intent.Kind) (RecordType, error) {
	switch k {
	case intent.KindAdd:
		return RecordAdd, nil
	case intent.KindModify:
		return RecordModify, nil
	case intent.KindCancel:
		return RecordCancel, nil
	case intent.KindCreateBook:
		return RecordCreateBook, nil
	case intent.KindRemoveBook:
		return RecordRemoveBook, nil
	}
	return 0, fmt.Errorf("journal: no record type for %s", k)
}
