package tuya

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const testDeviceID = "bf0123456789abcdef"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testDeviceID, testKey, "")
	if err != nil {
		t.Fatalf("NewCodec() error: %v", err)
	}
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestNewCodecVersion(t *testing.T) {
	if _, err := NewCodec(testDeviceID, testKey, "3.3"); err != nil {
		t.Errorf("NewCodec(3.3) error: %v", err)
	}
	if _, err := NewCodec(testDeviceID, testKey, "3.4"); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("NewCodec(3.4) error = %v, want ErrUnsupportedVersion", err)
	}
	if _, err := NewCodec(testDeviceID, "bad", ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("NewCodec(bad key) error = %v, want ErrInvalidKey", err)
	}
}

func TestEncodeRequestStatus(t *testing.T) {
	c := newTestCodec(t)

	data, err := c.EncodeRequest(KindStatus, 5, nil)
	if err != nil {
		t.Fatalf("EncodeRequest() error: %v", err)
	}

	f, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	if f.Command != CommandDPQuery {
		t.Errorf("Command = %v, want dp_query", f.Command)
	}
	if f.Seq != 5 {
		t.Errorf("Seq = %d, want 5", f.Seq)
	}
	if bytes.HasPrefix(f.Payload, []byte(Version33)) {
		t.Error("STATUS payload must not carry a version header")
	}

	plain, err := c.cipher.Decrypt(f.Payload)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(plain, &body); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if body["gwId"] != testDeviceID || body["devId"] != testDeviceID {
		t.Errorf("body ids = %v / %v, want %s", body["gwId"], body["devId"], testDeviceID)
	}
	if body["t"] != "1700000000" {
		t.Errorf("t = %v, want 1700000000", body["t"])
	}
}

func TestEncodeRequestSet(t *testing.T) {
	c := newTestCodec(t)

	data, err := c.EncodeRequest(KindSet, 9, DPS{"1": true, "2": int64(25)})
	if err != nil {
		t.Fatalf("EncodeRequest() error: %v", err)
	}

	f, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	if f.Command != CommandControl {
		t.Errorf("Command = %v, want control", f.Command)
	}
	if !bytes.HasPrefix(f.Payload, []byte(Version33)) {
		t.Error("CONTROL payload must carry the version header")
	}

	// A device decodes requests the same way the client decodes responses.
	dps, err := c.DecodeResponse(f)
	if err != nil {
		t.Fatalf("DecodeResponse() error: %v", err)
	}
	if dps["1"] != true || dps["2"] != int64(25) {
		t.Errorf("dps = %v, want 1=true 2=25", dps)
	}
}

func TestEncodeRequestErrors(t *testing.T) {
	c := newTestCodec(t)

	if _, err := c.EncodeRequest(KindSet, 1, nil); !errors.Is(err, ErrProtocol) {
		t.Errorf("EncodeRequest(SET, nil) error = %v, want ErrProtocol", err)
	}
	if _, err := c.EncodeRequest(CommandKind(99), 1, nil); !errors.Is(err, ErrProtocol) {
		t.Errorf("EncodeRequest(99) error = %v, want ErrProtocol", err)
	}
}

func TestDecodeResponse(t *testing.T) {
	c := newTestCodec(t)

	tests := []struct {
		name    string
		cmd     Command
		dps     DPS
		want    DPS
		wantLen int
	}{
		{
			name:    "dp query reply",
			cmd:     CommandDPQuery,
			dps:     DPS{"1": false, "2": 25, "3": "auto"},
			want:    DPS{"1": false, "2": int64(25), "3": "auto"},
			wantLen: 3,
		},
		{
			name:    "status push with version header",
			cmd:     CommandStatus,
			dps:     DPS{"101": 21.5},
			want:    DPS{"101": 21.5},
			wantLen: 1,
		},
		{
			name:    "bare acknowledgement",
			cmd:     CommandControl,
			dps:     nil,
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame(c.EncodeResponse(tt.cmd, 1, tt.dps))
			if err != nil {
				t.Fatalf("DecodeFrame() error: %v", err)
			}

			got, err := c.DecodeResponse(f)
			if err != nil {
				t.Fatalf("DecodeResponse() error: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d (%v)", len(got), tt.wantLen, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("dps[%s] = %v (%T), want %v (%T)", k, got[k], got[k], v, v)
				}
			}
		})
	}
}

func TestDecodeResponseErrors(t *testing.T) {
	c := newTestCodec(t)

	t.Run("non-zero return code", func(t *testing.T) {
		f := Frame{Command: CommandControl, HasRetCode: true, RetCode: 1, Payload: []byte("data format error")}
		if _, err := c.DecodeResponse(f); !errors.Is(err, ErrProtocol) {
			t.Errorf("DecodeResponse() error = %v, want ErrProtocol", err)
		}
	})

	t.Run("not encrypted", func(t *testing.T) {
		f := Frame{Command: CommandDPQuery, HasRetCode: true, Payload: []byte("plain text!")}
		if _, err := c.DecodeResponse(f); !errors.Is(err, ErrProtocol) {
			t.Errorf("DecodeResponse() error = %v, want ErrProtocol", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		f := Frame{Command: CommandDPQuery, HasRetCode: true, Payload: c.cipher.Encrypt([]byte("{not json"))}
		if _, err := c.DecodeResponse(f); !errors.Is(err, ErrProtocol) {
			t.Errorf("DecodeResponse() error = %v, want ErrProtocol", err)
		}
	})
}

func TestCommandKindAccepts(t *testing.T) {
	tests := []struct {
		kind CommandKind
		cmd  Command
		want bool
	}{
		{KindStatus, CommandDPQuery, true},
		{KindStatus, CommandStatus, false},
		{KindStatus, CommandHeartbeat, false},
		{KindSet, CommandControl, true},
		{KindSet, CommandStatus, true},
		{KindSet, CommandHeartbeat, false},
		{KindHeartbeat, CommandHeartbeat, true},
		{KindHeartbeat, CommandDPQuery, false},
	}
	for _, tt := range tests {
		if got := tt.kind.accepts(tt.cmd); got != tt.want {
			t.Errorf("%s.accepts(%s) = %v, want %v", tt.kind, tt.cmd, got, tt.want)
		}
	}
}

func TestDPSCloneMerge(t *testing.T) {
	var empty DPS
	if c := empty.Clone(); c == nil || len(c) != 0 {
		t.Errorf("nil.Clone() = %v, want empty map", c)
	}

	base := DPS{"1": true, "2": int64(10)}
	clone := base.Clone()
	clone["1"] = false
	if base["1"] != true {
		t.Error("Clone() shares storage with the original")
	}

	base.Merge(DPS{"2": int64(20), "3": "x"})
	if base["2"] != int64(20) || base["3"] != "x" || base["1"] != true {
		t.Errorf("Merge() = %v", base)
	}
}
