package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteFrame writes one reliable frame: a 4-byte big-endian length prefix
// followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return framingErrf("WriteFrame: empty payload")
	}
	if len(payload) > MaxReliablePayload {
		return framingErrf("WriteFrame: payload %d exceeds max %d", len(payload), MaxReliablePayload)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one reliable frame and returns its payload. It refuses
// frames whose declared length is zero or exceeds MaxReliablePayload
// without attempting to read that many bytes, so a malicious or corrupt
// peer cannot force a large allocation.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if n == 0 {
		return nil, framingErrf("ReadFrame: zero-length frame")
	}
	if n > MaxReliablePayload {
		return nil, framingErrf("ReadFrame: length %d exceeds max %d", n, MaxReliablePayload)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// EncodeDatagram encodes m and checks it against the send-side fragmentation
// cap. Callers drop (with a warning) rather than send when ok is false.
func EncodeDatagram(m Message) (payload []byte, ok bool, err error) {
	payload, err = EncodeMessage(m)
	if err != nil {
		return nil, false, err
	}
	if len(payload) > DatagramSendCap {
		return payload, false, nil
	}
	return payload, true, nil
}

// DecodeDatagram rejects obviously invalid datagram sizes before decoding
//.
func DecodeDatagram(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, framingErrf("DecodeDatagram: empty datagram")
	}
	if len(payload) > DatagramReceiveCap {
		return nil, framingErrf("DecodeDatagram: %d exceeds receive cap %d", len(payload), DatagramReceiveCap)
	}
	return DecodeMessage(payload)
}
