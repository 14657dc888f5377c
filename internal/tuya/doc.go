// Package tuya implements the local LAN protocol (version 3.3) spoken by
// Tuya-based devices.
//
// The package is split into three layers:
//
//   - frame.go: length-prefixed frames with CRC-32 and fixed prefix/suffix
//   - cipher.go, message.go: AES-128-ECB payload encryption and the JSON
//     datapoint documents carried by STATUS and SET requests
//   - conn.go: a TCP session that allows exactly one request in flight
//
// # Frame Layout
//
//	000055AA | seq | cmd | len | [retcode] | payload | crc32 | 0000AA55
//
// All integers are big-endian. Device-originated frames carry a 4-byte
// return code ahead of the payload.
//
// # Usage
//
//	conn, err := tuya.Open(ctx, tuya.Config{
//	    Address:  "192.168.1.50",
//	    DeviceID: "bf1234567890abcdef",
//	    LocalKey: "0123456789abcdef",
//	})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	dps, err := conn.Request(ctx, tuya.KindStatus, nil)
//
// # Errors
//
// Transport failures wrap ErrConnection; malformed frames, undecryptable
// payloads and non-zero device return codes wrap ErrProtocol. After any
// ErrConnection, or a protocol error that loses frame alignment, the session
// is closed and a new one must be opened.
//
// # Thread Safety
//
// Conn is safe for concurrent use; requests are serialised internally.
// Codec and Cipher are stateless after construction.
package tuya
