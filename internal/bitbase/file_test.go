package bitbase

import (
	"os"
	"path/filepath"
	"testing"
)

// buildTestVector returns a BitVector with a deterministic, not-too-
// sparse pattern of set bits so compressed clusters exercise more than
// one run.
func buildTestVector(size uint64) *BitVector {
	bv := NewBitVector(size)
	for i := uint64(0); i < size; i++ {
		if i%7 == 0 || i%11 == 0 {
			bv.Set(i)
		}
	}
	return bv
}

// File round-trip, spec.md §8 property 8 / S7: readAll(storeToFile(bb))
// must equal bb bit-for-bit, offsets must be strictly (here,
// non-decreasing per cluster boundary) increasing, and the bit count
// recovered must equal the original's popcount.
func TestFileRoundTrip(t *testing.T) {
	for _, comp := range []CompressionType{CompressionNone, CompressionRLE, CompressionMisc1, CompressionMisc2} {
		comp := comp
		t.Run(comp.String(), func(t *testing.T) {
			bv := buildTestVector(5000)
			sig := PieceSignature(0x1234)
			path := filepath.Join(t.TempDir(), "test.btb")

			if err := WriteFile(path, sig, bv, 256, comp); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}

			got, fi, err := ReadAll(path)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if fi.Sig != sig {
				t.Errorf("signature mismatch: got %v, want %v", fi.Sig, sig)
			}
			if got.Size() != bv.Size() {
				t.Fatalf("size mismatch: got %d, want %d", got.Size(), bv.Size())
			}
			for i := uint64(0); i < bv.Size(); i++ {
				if got.Get(i) != bv.Get(i) {
					t.Fatalf("bit %d mismatch: got %v, want %v", i, got.Get(i), bv.Get(i))
				}
			}
			if got.PopCount(0) != bv.PopCount(0) {
				t.Errorf("popcount mismatch: got %d, want %d", got.PopCount(0), bv.PopCount(0))
			}
			for i := 1; i < len(fi.Offsets); i++ {
				if fi.Offsets[i] < fi.Offsets[i-1] {
					t.Fatalf("offsets not non-decreasing at %d: %v", i, fi.Offsets)
				}
			}
		})
	}
}

// Clustered per-cluster reads must agree with a full in-memory load,
// per spec.md §8 property 8's "clustered probe yields same bits as
// full-load".
func TestFileClusterReadsMatchFullLoad(t *testing.T) {
	bv := buildTestVector(3000)
	sig := PieceSignature(0xabcd)
	path := filepath.Join(t.TempDir(), "test.btb")
	if err := WriteFile(path, sig, bv, 128, CompressionMisc1); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fi, err := ReadFileInfo(path)
	if err != nil {
		t.Fatalf("ReadFileInfo: %v", err)
	}
	full, _, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	var reassembled []byte
	for c := uint32(0); c < fi.ClusterCount; c++ {
		block, err := ReadCluster(fi, c)
		if err != nil {
			t.Fatalf("ReadCluster(%d): %v", c, err)
		}
		reassembled = append(reassembled, block...)
	}
	clustered := FromBytes(reassembled, fi.SizeInBits)

	for i := uint64(0); i < bv.Size(); i++ {
		if clustered.Get(i) != full.Get(i) {
			t.Fatalf("cluster-assembled bit %d disagrees with full load: %v vs %v", i, clustered.Get(i), full.Get(i))
		}
	}
}

func TestReadFileInfoRejectsBadMagicAndMissingFile(t *testing.T) {
	if _, err := ReadFileInfo(filepath.Join(t.TempDir(), "missing.btb")); err == nil {
		t.Error("expected error reading nonexistent file")
	}

	path := filepath.Join(t.TempDir(), "garbage.btb")
	if err := WriteFile(path, 1, NewBitVector(8), 64, CompressionNone); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// Corrupt the magic bytes and confirm ReadFileInfo rejects it.
	corrupt := filepath.Join(t.TempDir(), "corrupt.btb")
	data, err := EncodeFile(1, NewBitVector(8), 64, CompressionNone)
	if err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	data[0] = 'X'
	if err := os.WriteFile(corrupt, data, 0644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
	if _, err := ReadFileInfo(corrupt); err == nil {
		t.Error("expected error reading file with bad magic")
	}
}
