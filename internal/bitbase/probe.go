package bitbase

// Bitbase is the unified probe-side view over a won-bit table: either
// a fully loaded, possibly writable, in-memory BitVector, or a
// file-backed view that pages clusters through a ClusterCache on
// demand (C7).
type Bitbase struct {
	Signature PieceSignature

	loaded *BitVector // non-nil when fully loaded

	info  *FileInfo
	cache *ClusterCache
	fileID uint64
}

// NewLoadedBitbase wraps an in-memory, writable bit vector — the shape
// a GenerationState's won-vector takes immediately after a generation
// run, before it is ever written to disk.
func NewLoadedBitbase(sig PieceSignature, bits *BitVector) *Bitbase {
	return &Bitbase{Signature: sig, loaded: bits}
}

// NewFileBackedBitbase wraps a cluster file, reading bits on demand
// through the shared cluster cache.
func NewFileBackedBitbase(sig PieceSignature, info *FileInfo, cache *ClusterCache, fileID uint64) *Bitbase {
	return &Bitbase{Signature: sig, info: info, cache: cache, fileID: fileID}
}

// IsLoaded reports whether the bitbase is a fully in-memory vector.
func (b *Bitbase) IsLoaded() bool { return b.loaded != nil }

// Size returns the number of addressable indices.
func (b *Bitbase) Size() uint64 {
	if b.loaded != nil {
		return b.loaded.Size()
	}
	return b.info.SizeInBits
}

// GetBit returns the bit at index, degrading to a BitbaseError rather
// than panicking on any recoverable failure (§7).
func (b *Bitbase) GetBit(index uint64) (int, error) {
	if index >= b.Size() {
		return -1, &BitbaseError{Kind: ErrIndexOutOfRange, Sig: b.Signature}
	}
	if b.loaded != nil {
		if b.loaded.Get(index) {
			return 1, nil
		}
		return 0, nil
	}

	bitsPerCluster := uint64(b.info.ClusterSizeBytes) * 8
	clusterIndex := uint32(index / bitsPerCluster)
	bitInCluster := index % bitsPerCluster

	block, err := b.cache.Get(b.fileID, clusterIndex, func() ([]byte, error) {
		return ReadCluster(b.info, clusterIndex)
	})
	if err != nil {
		return -1, err
	}
	byteIdx := bitInCluster / 8
	if int(byteIdx) >= len(block) {
		return -1, &BitbaseError{Kind: ErrIndexOutOfRange, Sig: b.Signature}
	}
	if block[byteIdx]&(1<<(bitInCluster%8)) != 0 {
		return 1, nil
	}
	return 0, nil
}

// SetBit/ClearBit are only valid on fully-loaded, writable bitbases
// (during generation).
func (b *Bitbase) SetBit(index uint64) error {
	if b.loaded == nil {
		return &BitbaseError{Kind: ErrIndexOutOfRange, Sig: b.Signature, Err: errNotWritable}
	}
	b.loaded.Set(index)
	return nil
}

func (b *Bitbase) ClearBit(index uint64) error {
	if b.loaded == nil {
		return &BitbaseError{Kind: ErrIndexOutOfRange, Sig: b.Signature, Err: errNotWritable}
	}
	b.loaded.Clear(index)
	return nil
}

// ComputeWonPositions counts 1-bits from begin to end. Only meaningful
// on fully-loaded bitbases; file-backed callers should load fully
// first if they need an exact count.
func (b *Bitbase) ComputeWonPositions(begin uint64) uint64 {
	if b.loaded == nil {
		return 0
	}
	return b.loaded.PopCount(begin)
}

// GetAllIndexes enumerates indices where this[i]=1 and andNot[i]=0.
func (b *Bitbase) GetAllIndexes(andNot *BitVector) []uint64 {
	if b.loaded == nil {
		return nil
	}
	return b.loaded.GetAllIndexes(andNot)
}

var errNotWritable = errNotWritableError{}

type errNotWritableError struct{}

func (errNotWritableError) Error() string { return "bitbase: not writable (file-backed)" }
