package common

import (
	"crypto/ed25519"
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32

	marketSeedPrefix = "market"
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrInvalidPublicKey      = errors.New("invalid public key")
	ErrNoValidAddress        = errors.New("no valid derived address")
)

var (
	addressHashCtor = sha256.New
)

// CreateDerivedAddress hashes the seeds under a namespace key into an address
// that does not lie on the ed25519 curve, so no private key exists for it.
// ErrInvalidPublicKey is returned when the hash happens to be a valid point.
func CreateDerivedAddress(namespace ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	if len(seeds) > maxSeeds {
		return nil, ErrTooManySeeds
	}

	h := addressHashCtor()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}

		if _, err := h.Write(s); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	for _, v := range [][]byte{namespace, []byte("ProgramDerivedAddress")} {
		if _, err := h.Write(v); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	hash := h.Sum(nil)
	var pub [32]byte
	copy(pub[:], hash)

	// Reject anything that decompresses to a valid curve point
	var A edwards25519.ExtendedGroupElement
	if A.FromBytes(&pub) {
		return nil, ErrInvalidPublicKey
	}

	return pub[:], nil
}

// FindDerivedAddressAndBump searches bump seeds downwards from 255 for the
// first off-curve address.
func FindDerivedAddressAndBump(namespace ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	bumpSeed := []byte{math.MaxUint8}
	for i := 0; i < math.MaxUint8; i++ {
		pub, err := CreateDerivedAddress(namespace, append(seeds, bumpSeed)...)
		if err == nil {
			return pub, bumpSeed[0], nil
		}
		if err != ErrInvalidPublicKey {
			return nil, 0, err
		}

		bumpSeed[0]--
	}

	return nil, 0, ErrNoValidAddress
}

// GetMarketAddress derives the deterministic market address for a creator
// under a registry.
func GetMarketAddress(registry, creator *Account) (*Account, uint8, error) {
	if err := registry.Validate(); err != nil {
		return nil, 0, errors.Wrap(err, "invalid registry account")
	}
	if err := creator.Validate(); err != nil {
		return nil, 0, errors.Wrap(err, "invalid creator account")
	}

	pub, bump, err := FindDerivedAddressAndBump(
		registry.PublicKey().ToBytes(),
		[]byte(marketSeedPrefix),
		creator.PublicKey().ToBytes(),
	)
	if err != nil {
		return nil, 0, err
	}

	address, err := NewAccountFromPublicKeyBytes(pub)
	if err != nil {
		return nil, 0, err
	}
	return address, bump, nil
}
