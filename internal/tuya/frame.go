package tuya

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Frame layout constants (protocol 3.x, big-endian).
//
//	prefix(4) | seq(4) | cmd(4) | len(4) | [retcode(4)] | payload | crc32(4) | suffix(4)
//
// len counts every byte after the length field. The CRC covers prefix
// through the end of the payload.
const (
	framePrefix uint32 = 0x000055AA
	frameSuffix uint32 = 0x0000AA55

	// headerSize is prefix + seq + cmd + len.
	headerSize = 16

	// trailerSize is crc + suffix.
	trailerSize = 8

	// retCodeSize is the size of the return code carried by device frames.
	retCodeSize = 4

	// maxFrameSize bounds the len field. Devices never send more than a few
	// hundred bytes; anything larger means the stream is desynchronised.
	maxFrameSize = 64 * 1024
)

// Command identifies the frame type.
type Command uint32

// Commands used by the local protocol.
const (
	// CommandControl writes a partial datapoint map (SET).
	CommandControl Command = 0x07

	// CommandStatus is an unsolicited or post-write status push from the device.
	CommandStatus Command = 0x08

	// CommandHeartbeat keeps the session alive.
	CommandHeartbeat Command = 0x09

	// CommandDPQuery asks for the full datapoint map (STATUS).
	CommandDPQuery Command = 0x0a
)

// String returns a readable command name for logs.
func (c Command) String() string {
	switch c {
	case CommandControl:
		return "control"
	case CommandStatus:
		return "status"
	case CommandHeartbeat:
		return "heartbeat"
	case CommandDPQuery:
		return "dp_query"
	default:
		return fmt.Sprintf("0x%02x", uint32(c))
	}
}

// Frame is one length-prefixed protocol frame.
type Frame struct {
	// Seq is the sequence number. Devices echo the request's sequence number.
	Seq uint32

	// Command is the frame type.
	Command Command

	// RetCode is the device return code. Only meaningful when HasRetCode is set.
	RetCode uint32

	// HasRetCode is true for device-originated frames.
	HasRetCode bool

	// Payload is the (usually encrypted) body.
	Payload []byte
}

// EncodeFrame serialises a frame, computing the length field and CRC.
func EncodeFrame(f Frame) []byte {
	bodyLen := len(f.Payload) + trailerSize
	if f.HasRetCode {
		bodyLen += retCodeSize
	}

	buf := make([]byte, headerSize+bodyLen)
	binary.BigEndian.PutUint32(buf[0:4], framePrefix)
	binary.BigEndian.PutUint32(buf[4:8], f.Seq)
	binary.BigEndian.PutUint32(buf[8:12], uint32(f.Command))
	binary.BigEndian.PutUint32(buf[12:16], uint32(bodyLen)) //nolint:gosec // bounded by payload size

	off := headerSize
	if f.HasRetCode {
		binary.BigEndian.PutUint32(buf[off:off+retCodeSize], f.RetCode)
		off += retCodeSize
	}
	off += copy(buf[off:], f.Payload)

	binary.BigEndian.PutUint32(buf[off:off+4], crc32.ChecksumIEEE(buf[:off]))
	binary.BigEndian.PutUint32(buf[off+4:off+8], frameSuffix)

	return buf
}

// DecodeFrame parses exactly one complete frame.
//
// Device frames carry a 4-byte return code ahead of the payload. It is
// detected by its upper 24 bits being zero, which neither a version header
// nor AES ciphertext plausibly produce.
//
// Returns:
//   - Frame: the parsed frame
//   - error: wrapping ErrProtocol on any framing or CRC failure
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < headerSize+trailerSize {
		return Frame{}, fmt.Errorf("%w: frame too short (%d bytes)", ErrProtocol, len(data))
	}

	if prefix := binary.BigEndian.Uint32(data[0:4]); prefix != framePrefix {
		return Frame{}, fmt.Errorf("%w: bad prefix 0x%08x", ErrProtocol, prefix)
	}

	length := binary.BigEndian.Uint32(data[12:16])
	if int(length) != len(data)-headerSize {
		return Frame{}, fmt.Errorf("%w: length field %d does not match %d body bytes",
			ErrProtocol, length, len(data)-headerSize)
	}

	end := len(data) - trailerSize
	if suffix := binary.BigEndian.Uint32(data[end+4:]); suffix != frameSuffix {
		return Frame{}, fmt.Errorf("%w: bad suffix 0x%08x", ErrProtocol, suffix)
	}

	want := binary.BigEndian.Uint32(data[end : end+4])
	if got := crc32.ChecksumIEEE(data[:end]); got != want {
		return Frame{}, fmt.Errorf("%w: crc mismatch (got 0x%08x, want 0x%08x)", ErrProtocol, got, want)
	}

	f := Frame{
		Seq:     binary.BigEndian.Uint32(data[4:8]),
		Command: Command(binary.BigEndian.Uint32(data[8:12])),
	}

	content := data[headerSize:end]
	if len(content) >= retCodeSize && binary.BigEndian.Uint32(content[:retCodeSize])&0xFFFFFF00 == 0 {
		f.HasRetCode = true
		f.RetCode = binary.BigEndian.Uint32(content[:retCodeSize])
		content = content[retCodeSize:]
	}

	f.Payload = make([]byte, len(content))
	copy(f.Payload, content)

	return f, nil
}

// ReadFrame reads one frame from r.
//
// A bad prefix or an oversized length field is fatal for the stream: the
// caller must drop the connection because frame boundaries are lost.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, fmt.Errorf("%w: read header: %w", ErrConnection, err)
	}

	if prefix := binary.BigEndian.Uint32(header[0:4]); prefix != framePrefix {
		return Frame{}, fmt.Errorf("%w: bad prefix 0x%08x", ErrProtocol, prefix)
	}

	length := binary.BigEndian.Uint32(header[12:16])
	if length > maxFrameSize {
		return Frame{}, fmt.Errorf("%w: %w: length %d", ErrProtocol, ErrFrameTooLarge, length)
	}
	if length < trailerSize {
		return Frame{}, fmt.Errorf("%w: length %d shorter than trailer", ErrProtocol, length)
	}

	buf := make([]byte, headerSize+int(length))
	copy(buf, header)
	if _, err := io.ReadFull(r, buf[headerSize:]); err != nil {
		return Frame{}, fmt.Errorf("%w: read body: %w", ErrConnection, err)
	}

	return DecodeFrame(buf)
}
