package types

import "mlsgroup/internal/codec"

// EncodePSKID returns the canonical storage id for an external pre-shared
// key: the raw id as a length-prefixed vector. The mapping is pure, so the
// proposer and every receiver look the key up under the same bytes.
func EncodePSKID(rawID []byte) []byte {
	return codec.EncodeOpaque(rawID)
}
