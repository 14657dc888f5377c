package tuya

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"
)

// Protocol version handling.
const (
	// Version33 is the only protocol version this package speaks.
	Version33 = "3.3"

	// versionHeaderSize is the version string plus 12 reserved zero bytes
	// that prefix CONTROL and STATUS-push payloads.
	versionHeaderSize = 15
)

// DPS is a raw datapoint map: datapoint id -> raw value (bool, int64,
// float64, string). It is the unit of device state on the wire.
type DPS map[string]any

// Clone returns a shallow copy. A nil map clones to an empty map.
func (d DPS) Clone() DPS {
	out := make(DPS, len(d))
	maps.Copy(out, d)
	return out
}

// Merge copies every entry of other into d.
func (d DPS) Merge(other DPS) {
	maps.Copy(d, other)
}

// CommandKind is the request kind exposed to callers.
type CommandKind int

// Request kinds.
const (
	// KindStatus queries every datapoint.
	KindStatus CommandKind = iota + 1

	// KindSet writes a partial datapoint map.
	KindSet

	// KindHeartbeat checks the session is alive.
	KindHeartbeat
)

// String returns the kind name used in logs and metric labels.
func (k CommandKind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindSet:
		return "set"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// command returns the frame command a request of this kind is sent as.
func (k CommandKind) command() (Command, error) {
	switch k {
	case KindStatus:
		return CommandDPQuery, nil
	case KindSet:
		return CommandControl, nil
	case KindHeartbeat:
		return CommandHeartbeat, nil
	default:
		return 0, fmt.Errorf("%w: unknown command kind %d", ErrProtocol, int(k))
	}
}

// accepts reports whether a frame with command cmd answers a request of this kind.
// Devices acknowledge CONTROL with an empty CONTROL frame or push the
// changed datapoints as STATUS, either of which completes a SET.
func (k CommandKind) accepts(cmd Command) bool {
	switch k {
	case KindStatus:
		return cmd == CommandDPQuery
	case KindSet:
		return cmd == CommandControl || cmd == CommandStatus
	case KindHeartbeat:
		return cmd == CommandHeartbeat
	default:
		return false
	}
}

// Codec builds request frames and decodes response frames for one device.
//
// It is pure and synchronous: no I/O, no shared mutable state.
type Codec struct {
	cipher   *Cipher
	deviceID string
	now      func() time.Time
}

// NewCodec creates a codec for a device.
//
// Parameters:
//   - deviceID: the device id (devId / gwId)
//   - localKey: the 16-byte local key
//   - version: protocol version; empty means 3.3
func NewCodec(deviceID, localKey, version string) (*Codec, error) {
	if version == "" {
		version = Version33
	}
	if version != Version33 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
	c, err := NewCipher(localKey)
	if err != nil {
		return nil, err
	}
	return &Codec{cipher: c, deviceID: deviceID, now: time.Now}, nil
}

// requestBody is the JSON document carried by every request.
type requestBody struct {
	GwID  string `json:"gwId,omitempty"`
	DevID string `json:"devId"`
	UID   string `json:"uid"`
	T     string `json:"t"`
	DPS   DPS    `json:"dps,omitempty"`
}

// responseBody is the decrypted JSON document carried by device frames.
type responseBody struct {
	DevID string         `json:"devId"`
	DPS   map[string]any `json:"dps"`
}

// EncodeRequest builds a complete frame for a request.
//
// Parameters:
//   - kind: KindStatus, KindSet or KindHeartbeat
//   - seq: sequence number to stamp on the frame
//   - dps: datapoints to write (KindSet only)
//
// Returns:
//   - []byte: the framed, encrypted request
//   - error: wrapping ErrProtocol for an unknown kind or empty SET
func (c *Codec) EncodeRequest(kind CommandKind, seq uint32, dps DPS) ([]byte, error) {
	cmd, err := kind.command()
	if err != nil {
		return nil, err
	}

	body := requestBody{
		DevID: c.deviceID,
		UID:   c.deviceID,
		T:     strconv.FormatInt(c.now().Unix(), 10),
	}

	switch kind {
	case KindSet:
		if len(dps) == 0 {
			return nil, fmt.Errorf("%w: SET requires at least one datapoint", ErrProtocol)
		}
		body.DPS = dps
	case KindStatus, KindHeartbeat:
		body.GwID = c.deviceID
	}

	plain, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %w", ErrProtocol, err)
	}

	payload := c.cipher.Encrypt(plain)
	if cmd == CommandControl {
		payload = append(versionHeader(), payload...)
	}

	return EncodeFrame(Frame{Seq: seq, Command: cmd, Payload: payload}), nil
}

// EncodeResponse builds a device-originated frame. It is the inverse of
// DecodeResponse and is used by device simulators.
func (c *Codec) EncodeResponse(cmd Command, seq uint32, dps DPS) []byte {
	var payload []byte
	if dps != nil {
		plain, _ := json.Marshal(responseBody{DevID: c.deviceID, DPS: dps}) //nolint:errcheck // map of primitives
		payload = c.cipher.Encrypt(plain)
		if cmd == CommandStatus {
			payload = append(versionHeader(), payload...)
		}
	}
	return EncodeFrame(Frame{Seq: seq, Command: cmd, HasRetCode: true, Payload: payload})
}

// DecodeResponse extracts the datapoint map from a device frame.
//
// An empty payload (a bare acknowledgement) yields an empty map.
//
// Returns:
//   - DPS: datapoints reported by the device (possibly partial)
//   - error: wrapping ErrProtocol on a non-zero return code, decrypt or JSON failure
func (c *Codec) DecodeResponse(f Frame) (DPS, error) {
	payload := f.Payload
	if f.HasRetCode && f.RetCode != 0 {
		return nil, fmt.Errorf("%w: device returned code %d: %q", ErrProtocol, f.RetCode, payload)
	}

	if len(payload) >= versionHeaderSize && bytes.HasPrefix(payload, []byte(Version33)) {
		payload = payload[versionHeaderSize:]
	}
	if len(payload) == 0 {
		return DPS{}, nil
	}

	plain, err := c.cipher.Decrypt(payload)
	if err != nil {
		return nil, err
	}

	return parseDPS(plain)
}

// parseDPS decodes the "dps" object of a response document.
func parseDPS(plain []byte) (DPS, error) {
	dec := json.NewDecoder(bytes.NewReader(plain))
	dec.UseNumber()

	var body responseBody
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response json: %w", ErrProtocol, err)
	}

	out := make(DPS, len(body.DPS))
	for id, v := range body.DPS {
		out[id] = normaliseNumber(v)
	}
	return out, nil
}

// normaliseNumber turns json.Number into int64 when integral, float64 otherwise.
func normaliseNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func versionHeader() []byte {
	h := make([]byte, versionHeaderSize)
	copy(h, Version33)
	return h
}
