package bitbase

import (
	"bytes"
	"testing"
)

func TestWriteEmbeddedGoSourceRoundTrip(t *testing.T) {
	list, err := ParsePieceList("KPK")
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(list)
	sig := list.Signature()

	bv := NewBitVector(idx.Size())
	for i := uint64(0); i < idx.Size(); i += 7 {
		bv.Set(i)
	}

	encoded, err := EncodeFile(sig, bv, 4096, CompressionMisc1)
	if err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}

	var src bytes.Buffer
	if err := WriteEmbeddedGoSource(&src, "KPK", encoded); err != nil {
		t.Fatalf("WriteEmbeddedGoSource: %v", err)
	}
	if !bytes.Contains(src.Bytes(), []byte("var KPKData = []uint32{")) {
		t.Errorf("generated source missing expected variable declaration:\n%s", src.String())
	}

	words := packWords(encoded)
	got, fi, err := LoadFromEmbeddedData(words, len(encoded), false)
	if err != nil {
		t.Fatalf("LoadFromEmbeddedData: %v", err)
	}
	if fi.Sig != sig {
		t.Errorf("Sig = %d, want %d", fi.Sig, sig)
	}
	if fi.SizeInBits != bv.Size() {
		t.Errorf("SizeInBits = %d, want %d", fi.SizeInBits, bv.Size())
	}
	for i := uint64(0); i < bv.Size(); i++ {
		if got.Get(i) != bv.Get(i) {
			t.Fatalf("bit %d mismatch after embedded round trip: got %v, want %v", i, got.Get(i), bv.Get(i))
		}
	}
}

func TestPackUnpackWordsRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 3, 4, 5, 16, 17} {
		raw := make([]byte, n)
		for i := range raw {
			raw[i] = byte(i*31 + 7)
		}
		words := packWords(raw)
		back := unpackWords(words, len(raw))
		if !bytes.Equal(back, raw) {
			t.Errorf("len %d: round trip mismatch: got %v, want %v", n, back, raw)
		}
	}
}
