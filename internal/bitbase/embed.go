package bitbase

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteEmbeddedGoSource emits a standalone Go source file declaring a
// package-level []uint32 literal holding a full cluster bitbase file
// (header, offsets, compressed clusters) word-packed little-endian, four
// bytes to a word. This is the Go-native analogue of the original
// engine's writeCompressedVectorAsCppFile, which emitted a compiled-in
// uint32_t[] constant plus a matching header for bitbases linked
// directly into the executable rather than shipped as loose .btb
// files. varName becomes the exported slice's name, e.g. "KPK" yields
// "KPKData".
func WriteEmbeddedGoSource(w io.Writer, varName string, fileBytes []byte) error {
	words := packWords(fileBytes)

	if _, err := fmt.Fprintf(w, "// Code generated by bitbase.WriteEmbeddedGoSource. DO NOT EDIT.\n\npackage bitbase\n\nvar %sData = []uint32{\n", varName); err != nil {
		return err
	}
	for i, word := range words {
		if i%8 == 0 {
			if _, err := io.WriteString(w, "\t"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "0x%08x, ", word); err != nil {
			return err
		}
		if i%8 == 7 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
	}
	if len(words)%8 != 0 {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "}\n\n// %sDataLen is the exact byte length of the encoded file; packWords\n// pads the final word with zero bytes, so len(%sData)*4 may overshoot.\nconst %sDataLen = %d\n", varName, varName, varName, len(fileBytes))
	return err
}

// LoadFromEmbeddedData decodes a word array produced by
// WriteEmbeddedGoSource (or handwritten to the same layout) back into a
// BitVector and its FileInfo header, without touching the filesystem —
// the counterpart to ReadAll for bitbases compiled directly into the
// binary (spec.md §6, "Embedded-data interface").
func LoadFromEmbeddedData(data []uint32, byteLen int, verbose bool) (*BitVector, *FileInfo, error) {
	raw := unpackWords(data, byteLen)

	fi, err := readFileInfo(bytes.NewReader(raw), "<embedded>")
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		fmt.Printf("bitbase: loaded embedded signature %d, %d bits, %d clusters\n", fi.Sig, fi.SizeInBits, fi.ClusterCount)
	}

	buf := make([]byte, 0, fi.ClusterCount*fi.ClusterSizeBytes)
	body := raw[fi.dataOffset():]
	for c := uint32(0); c < fi.ClusterCount; c++ {
		start := fi.Offsets[c]
		end := fi.Offsets[c+1]
		block, err := Decompress(body[start:end], fi.Compression, int(fi.ClusterSizeBytes))
		if err != nil {
			return nil, nil, &BitbaseError{Kind: ErrDecompress, Path: fi.Path, Err: err}
		}
		buf = append(buf, block...)
	}
	return FromBytes(buf, fi.SizeInBits), fi, nil
}

// packWords groups raw into little-endian uint32 words, zero-padding
// the final word if raw's length is not a multiple of 4.
func packWords(raw []byte) []uint32 {
	n := (len(raw) + 3) / 4
	words := make([]uint32, n)
	padded := raw
	if rem := len(raw) % 4; rem != 0 {
		padded = make([]byte, len(raw)+(4-rem))
		copy(padded, raw)
	}
	for i := 0; i < n; i++ {
		words[i] = binary.LittleEndian.Uint32(padded[i*4 : i*4+4])
	}
	return words
}

// unpackWords is the inverse of packWords, truncated to byteLen actual
// payload bytes.
func unpackWords(words []uint32, byteLen int) []byte {
	raw := make([]byte, len(words)*4)
	for i, word := range words {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], word)
	}
	return raw[:byteLen]
}
