package entry

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"matchbook/infra/wal"
)

type RecordType uint8

// Record types mirror intent kinds so the journal can be read without
// decoding payloads.
const (
	RecordAdd RecordType = iota + 1
	RecordModify
	RecordCancel
	RecordCreateBook
	RecordRemoveBook
)

func (t RecordType) String() string {
	switch t {
	case RecordAdd:
		return "ADD"
	case RecordModify:
		return "MODIFY"
	case RecordCancel:
		return "CANCEL"
	case RecordCreateBook:
		return "CREATE_BOOK"
	case RecordRemoveBook:
		return "REMOVE_BOOK"
	default:
		return fmt.Sprintf("TYPE(%d)", uint8(t))
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time time.Time
	Data []byte
}

// Frame:
// [type:1][seq:8][time:8][len:4][payload][crc:4]
// The crc covers header and payload.
const (
	headerSize  = 1 + 8 + 8 + 4
	trailerSize = 4
	// MaxPayload bounds a single record.
	MaxPayload = 16 << 20
)

func encodeFrame(r *Record) []byte {
	n := uint32(len(r.Data))
	buf := make([]byte, headerSize+int(n)+trailerSize)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time.UnixNano()))
	binary.BigEndian.PutUint32(buf[17:21], n)
	copy(buf[headerSize:], r.Data)

	crc := wal.CRC32(buf[:headerSize+int(n)])
	binary.BigEndian.PutUint32(buf[headerSize+int(n):], crc)
	return buf
}

// readFrame returns io.EOF on a clean end and io.ErrUnexpectedEOF on a
// torn frame.
func readFrame(r io.Reader) (*Record, int64, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, 0, err
	}

	n := binary.BigEndian.Uint32(header[17:21])
	if n > MaxPayload {
		return nil, 0, fmt.Errorf("%w: payload length %d", wal.ErrCorrupt, n)
	}
	body := make([]byte, int(n)+trailerSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}

	payload := body[:n]
	crc := binary.BigEndian.Uint32(body[n:])
	if !wal.CRC32Valid(crc, header[:], payload) {
		return nil, 0, wal.ErrCorrupt
	}

	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: time.Unix(0, int64(binary.BigEndian.Uint64(header[9:17]))),
		Data: payload,
	}, int64(headerSize + int(n) + trailerSize), nil
}
