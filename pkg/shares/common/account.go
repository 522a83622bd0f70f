package common

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"
)

// Account is a participant address: a creator, a trader or a fee beneficiary.
type Account struct {
	publicKey *Key
}

func NewAccountFromPublicKey(publicKey *Key) (*Account, error) {
	account := &Account{
		publicKey: publicKey,
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}
	return account, nil
}

func NewAccountFromPublicKeyBytes(publicKey []byte) (*Account, error) {
	key, err := NewKeyFromBytes(publicKey)
	if err != nil {
		return nil, err
	}

	return NewAccountFromPublicKey(key)
}

func NewAccountFromPublicKeyString(publicKey string) (*Account, error) {
	key, err := NewKeyFromString(publicKey)
	if err != nil {
		return nil, err
	}

	return NewAccountFromPublicKey(key)
}

func NewRandomAccount() (*Account, error) {
	publicKey, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "error generating key pair")
	}

	return NewAccountFromPublicKeyBytes(publicKey)
}

func (a *Account) PublicKey() *Key {
	return a.publicKey
}

func (a *Account) Equals(other *Account) bool {
	if a == nil || other == nil {
		return false
	}
	return bytes.Equal(a.publicKey.ToBytes(), other.publicKey.ToBytes())
}

func (a *Account) Validate() error {
	if a == nil {
		return errors.New("account is nil")
	}

	if err := a.publicKey.Validate(); err != nil {
		return errors.Wrap(err, "error validating public key")
	}

	return nil
}

func (a *Account) String() string {
	return a.publicKey.ToBase58()
}
