package modbusaccess

import "testing"

func TestFloatTypeRoundTrip(t *testing.T) {
	cases := []float64{0, 1, -1, 3.14159, -273.15, 1e6, -1e-6}

	for _, want := range cases {
		encoded := FloatType.toBytesFunc(want)
		if len(encoded) != int(FloatType.dataLength) {
			t.Fatalf("encoded length = %d, want %d", len(encoded), FloatType.dataLength)
		}
		got := FloatType.fromBytesFunc(encoded).(float64)
		gotF32 := float32(got)
		wantF32 := float32(want)
		if gotF32 != wantF32 {
			t.Fatalf("round trip mismatch: got %v, want %v", gotF32, wantF32)
		}
	}
}

func TestUint16TypeRoundTrip(t *testing.T) {
	want := uint16(1234)
	encoded := Uint16Type.toBytesFunc(want)
	got := Uint16Type.fromBytesFunc(encoded).(uint16)
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}
