package codec

import (
	"errors"
	"strings"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func TestScaleEncode(t *testing.T) {
	tests := []struct {
		name    string
		scale   Scale
		value   any
		want    int64
		wantErr bool
	}{
		{"rounds up", Scale{Factor: 1, Min: ptr(5), Max: ptr(35)}, 24.6, 25, false},
		{"rounds down", Scale{Factor: 1, Min: ptr(5), Max: ptr(35)}, 24.4, 24, false},
		{"factor 10", Scale{Factor: 10}, 21.5, 215, false},
		{"zero factor means 1", Scale{}, 7, 7, false},
		{"inclusive max", Scale{Factor: 1, Min: ptr(5), Max: ptr(35)}, 35, 35, false},
		{"numeric string", Scale{Factor: 1}, "22", 22, false},
		{"above max", Scale{Factor: 1, Min: ptr(5), Max: ptr(35)}, 36, 0, true},
		{"below min", Scale{Factor: 1, Min: ptr(5), Max: ptr(35)}, 4.9, 0, true},
		{"not a number", Scale{Factor: 1}, "warm", 0, true},
		{"bool", Scale{Factor: 1}, true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.scale.Encode(tt.value, nil)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("Encode(%v) error = %v, want ErrValidation", tt.value, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Encode(%v) unexpected error: %v", tt.value, err)
			}
			if got != tt.want {
				t.Errorf("Encode(%v) = %v (%T), want %d", tt.value, got, got, tt.want)
			}
		})
	}
}

func TestScaleValidationErrorCarriesRange(t *testing.T) {
	s := Scale{Factor: 1, Min: ptr(5), Max: ptr(35)}

	_, err := s.Encode(36, nil)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Encode(36) error = %v, want *ValidationError", err)
	}
	if ve.Min == nil || *ve.Min != 5 || ve.Max == nil || *ve.Max != 35 {
		t.Errorf("range = %v..%v, want 5..35", ve.Min, ve.Max)
	}
	if !strings.Contains(err.Error(), "between 5 and 35") {
		t.Errorf("Error() = %q, want it to mention the range", err.Error())
	}
}

func TestScaleDecode(t *testing.T) {
	s := Scale{Factor: 10}

	got, err := s.Decode(int64(215))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got != 21.5 {
		t.Errorf("Decode(215) = %v, want 21.5", got)
	}

	got, err = s.Decode("n/a")
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Decode(string) error = %v, want ErrDecode", err)
	}
	if got != Unknown {
		t.Errorf("Decode(string) = %v, want Unknown", got)
	}
}

func TestScaleRoundTrip(t *testing.T) {
	scales := []Scale{
		{Factor: 1, Min: ptr(5), Max: ptr(35)},
		{Factor: 10, Min: ptr(-20), Max: ptr(50)},
		{Factor: 2},
	}
	for _, s := range scales {
		for _, v := range []float64{5, 10, 20.5, 35} {
			if s.Factor == 1 && v != float64(int64(v)) {
				continue // only integers are representable at factor 1
			}
			raw, err := s.Encode(v, nil)
			if err != nil {
				t.Errorf("%s Encode(%v) error: %v", s, v, err)
				continue
			}
			got, err := s.Decode(raw)
			if err != nil || got != v {
				t.Errorf("%s Decode(Encode(%v)) = %v, %v", s, v, got, err)
			}
		}
	}
}
