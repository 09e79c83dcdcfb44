package bitbase

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/s2"
)

// CompressionType tags which algorithm a cluster (or the whole file,
// since this format uses one algorithm per file) is compressed with.
// Grounded on the original engine's one-byte tagged-variant dispatch
// (QaplaCompress::uncompress switches on the input's first byte); here
// the tag lives in the file header (§6) rather than per-blob, since one
// file always uses one compressor.
type CompressionType byte

const (
	CompressionNone CompressionType = 0
	CompressionRLE  CompressionType = 1
	CompressionMisc1 CompressionType = 2 // deflate, via klauspost/compress/flate
	CompressionMisc2 CompressionType = 3 // s2, via klauspost/compress/s2
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "NONE"
	case CompressionRLE:
		return "RLE"
	case CompressionMisc1:
		return "MISC1"
	case CompressionMisc2:
		return "MISC2"
	default:
		return fmt.Sprintf("Compression(%d)", c)
	}
}

// Compress compresses data with the given algorithm.
func Compress(data []byte, kind CompressionType) ([]byte, error) {
	switch kind {
	case CompressionNone:
		return append([]byte(nil), data...), nil
	case CompressionRLE:
		return rleCompress(data), nil
	case CompressionMisc1:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionMisc2:
		return s2.Encode(nil, data), nil
	default:
		return nil, fmt.Errorf("bitbase: unknown compression type %d", kind)
	}
}

// Decompress reverses Compress.
func Decompress(data []byte, kind CompressionType, decompressedSize int) ([]byte, error) {
	switch kind {
	case CompressionNone:
		return append([]byte(nil), data...), nil
	case CompressionRLE:
		return rleDecompress(data, decompressedSize)
	case CompressionMisc1:
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		out := make([]byte, 0, decompressedSize)
		buf := bytes.NewBuffer(out)
		if _, err := io.Copy(buf, r); err != nil {
			return nil, fmt.Errorf("bitbase: decompress error: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionMisc2:
		out, err := s2.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("bitbase: decompress error: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("bitbase: unknown compression type %d", kind)
	}
}

// rleCompress implements a simple byte-oriented run-length encoding:
// a stream of (count byte, value byte) pairs, each run capped at 255
// bytes and split across pairs when longer. Bitbase clusters are long
// runs of identical bytes (mostly 0x00 for draws/illegal and 0xff for
// dense win regions), which RLE captures well and cheaply — no pack
// library offers a dedicated bit-run codec, so this one variant is
// hand-rolled (see DESIGN.md).
func rleCompress(data []byte) []byte {
	out := make([]byte, 0, len(data)/4+2)
	i := 0
	for i < len(data) {
		v := data[i]
		run := 1
		for i+run < len(data) && data[i+run] == v && run < 255 {
			run++
		}
		out = append(out, byte(run), v)
		i += run
	}
	return out
}

func rleDecompress(data []byte, sizeHint int) ([]byte, error) {
	if sizeHint <= 0 {
		sizeHint = len(data) * 2
	}
	out := make([]byte, 0, sizeHint)
	for i := 0; i+1 < len(data); i += 2 {
		run := int(data[i])
		v := data[i+1]
		for r := 0; r < run; r++ {
			out = append(out, v)
		}
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("bitbase: corrupt RLE stream: odd-length payload")
	}
	return out, nil
}
