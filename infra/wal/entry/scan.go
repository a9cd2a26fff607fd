package entry

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
)

// maxSeqInSegment returns the highest sequence number in a segment
// without reading payloads.
func maxSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var highest uint64
	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return highest, nil
			}
			return highest, err
		}

		highest = max(highest, binary.BigEndian.Uint64(header[1:9]))

		payloadLen := binary.BigEndian.Uint32(header[17:21])
		if _, err := f.Seek(int64(payloadLen)+4, io.SeekCurrent); err != nil {
			return highest, err
		}
	}
}

// validTail returns the highest sequence number in a segment and the
// offset just past its last complete record.
func validTail(path string) (highest uint64, end int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := readRecord(r)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return highest, end, nil
		}
		if err != nil {
			return highest, end, err
		}
		highest = max(highest, rec.Seq)
		end += int64(headerSize + len(rec.Data) + 4)
	}
}
