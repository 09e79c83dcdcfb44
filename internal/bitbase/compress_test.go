package bitbase

import (
	"bytes"
	"testing"
)

// Compression round-trip, spec.md §8 property 7: for every compression
// type, decompress(compress(bytes, c)) must equal bytes.
func TestCompressRoundTrip(t *testing.T) {
	patterns := map[string][]byte{
		"empty":       {},
		"all-zero":    make([]byte, 256),
		"all-ones":    bytes.Repeat([]byte{0xff}, 300),
		"mixed-runs":  append(bytes.Repeat([]byte{0x00}, 64), bytes.Repeat([]byte{0xff}, 64)...),
		"incrementing": func() []byte {
			b := make([]byte, 512)
			for i := range b {
				b[i] = byte(i)
			}
			return b
		}(),
	}

	for _, kind := range []CompressionType{CompressionNone, CompressionRLE, CompressionMisc1, CompressionMisc2} {
		for name, data := range patterns {
			data := data
			t.Run(kind.String()+"/"+name, func(t *testing.T) {
				compressed, err := Compress(data, kind)
				if err != nil {
					t.Fatalf("Compress: %v", err)
				}
				got, err := Decompress(compressed, kind, len(data))
				if err != nil {
					t.Fatalf("Decompress: %v", err)
				}
				if !bytes.Equal(got, data) {
					t.Errorf("round trip mismatch: got %v, want %v", got, data)
				}
			})
		}
	}
}

func TestDecompressUnknownTypeErrors(t *testing.T) {
	if _, err := Compress([]byte{1, 2, 3}, CompressionType(99)); err == nil {
		t.Error("expected error compressing with unknown type")
	}
	if _, err := Decompress([]byte{1, 2, 3}, CompressionType(99), 3); err == nil {
		t.Error("expected error decompressing with unknown type")
	}
}

func TestRLEDecompressRejectsOddLengthPayload(t *testing.T) {
	if _, err := Decompress([]byte{3, 0xff, 1}, CompressionRLE, 4); err == nil {
		t.Error("expected error decompressing corrupt (odd-length) RLE stream")
	}
}
