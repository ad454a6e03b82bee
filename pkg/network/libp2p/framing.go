package libp2p

import (
	"bufio"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// writeFramed writes a varint length prefix followed by buf, matching the
// length-delimited framing the original's prost/asynchronous-codec stream
// transport applies on top of the raw substream.
func writeFramed(w io.Writer, buf []byte) error {
	if len(buf) > maxMessageSize {
		return fmt.Errorf("libp2p: message of %d bytes exceeds max frame size", len(buf))
	}
	prefix := protowire.AppendVarint(nil, uint64(len(buf)))
	if _, err := w.Write(prefix); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

// readFramed reads one varint-length-prefixed message from r.
func readFramed(r *bufio.Reader) ([]byte, error) {
	length, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if length > maxMessageSize {
		return nil, fmt.Errorf("libp2p: incoming frame of %d bytes exceeds max frame size", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readUvarint reads a protobuf-style varint one byte at a time, since
// protowire.ConsumeVarint needs the whole buffer up front and frame
// lengths arrive over a streaming reader.
func readUvarint(r *bufio.Reader) (uint64, error) {
	var x uint64
	var s uint
	for i := 0; i < 10; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			if i == 9 && b > 1 {
				return 0, fmt.Errorf("libp2p: varint overflow")
			}
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, fmt.Errorf("libp2p: varint too long")
}
