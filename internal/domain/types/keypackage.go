package types

import "mlsgroup/internal/util/memzero"

// KeyPackageData is a published key package plus the private keys needed to
// join with it. It is single use and must be erased once consumed.
type KeyPackageData struct {
	KeyPackageBytes   []byte
	InitKeySecret     []byte
	LeafNodeKeySecret []byte
	Expiration        uint64
}

// Clone returns a deep copy of k.
func (k KeyPackageData) Clone() KeyPackageData {
	return KeyPackageData{
		KeyPackageBytes:   append([]byte(nil), k.KeyPackageBytes...),
		InitKeySecret:     append([]byte(nil), k.InitKeySecret...),
		LeafNodeKeySecret: append([]byte(nil), k.LeafNodeKeySecret...),
		Expiration:        k.Expiration,
	}
}

// Erase overwrites the secret fields in place.
func (k *KeyPackageData) Erase() {
	memzero.Zero(k.InitKeySecret)
	memzero.Zero(k.LeafNodeKeySecret)
	k.InitKeySecret, k.LeafNodeKeySecret = nil, nil
}
