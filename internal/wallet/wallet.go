// Package wallet provides Ed25519 key material for signing transactions
// against the box/proposition model: BIP-39 mnemonic generation and
// SLIP-010-style hardened hierarchical derivation, wired the same way the
// teacher's core wallet derives account keys, minus the secp256k1/ECDSA
// account-address path that does not apply here (Ed25519 keys are the
// proposition's native key type).
package wallet

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"

	"tristate-ledger/core"
)

const (
	hardenedOffset uint32 = 0x80000000
	masterHMACKey         = "ed25519 seed"
)

var globalLogger = log.New()

// SetLogger overrides the package-wide logger used for derivation diagnostics.
func SetLogger(l *log.Logger) { globalLogger = l }

// HDWallet keeps master key material in memory only; callers owning a
// mnemonic are responsible for its secure storage.
type HDWallet struct {
	seed        []byte
	masterKey   []byte
	masterChain []byte
	logger      *log.Logger
}

// Seed returns a copy of the wallet's master seed.
func (w *HDWallet) Seed() []byte {
	out := make([]byte, len(w.seed))
	copy(out, w.seed)
	return out
}

// NewRandomWallet generates entropyBits (128/256) of RNG entropy and returns
// the resulting wallet alongside its recovery mnemonic.
func NewRandomWallet(entropyBits int) (*HDWallet, string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return nil, "", fmt.Errorf("unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, "", fmt.Errorf("entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("mnemonic: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")
	w, err := NewHDWalletFromSeed(seed, globalLogger)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// FromMnemonic imports an existing BIP-39 phrase.
func FromMnemonic(mnemonic, passphrase string) (*HDWallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return NewHDWalletFromSeed(seed, globalLogger)
}

// NewHDWalletFromSeed derives the master key and chain code from a raw seed.
func NewHDWalletFromSeed(seed []byte, lg *log.Logger) (*HDWallet, error) {
	if len(seed) < 16 {
		return nil, errors.New("seed too short")
	}
	if lg == nil {
		lg = globalLogger
	}
	I := hmacSHA512([]byte(masterHMACKey), seed)
	w := &HDWallet{seed: seed, masterKey: I[:32], masterChain: I[32:], logger: lg}
	lg.Debugf("wallet: master key initialised (%d bytes seed)", len(seed))
	return w, nil
}

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// derivePrivate returns child key material for a hardened index; ed25519
// only supports hardened derivation, so index must already carry the offset.
func derivePrivate(parentKey, parentChain []byte, index uint32) (key, ccode []byte, err error) {
	if index < hardenedOffset {
		return nil, nil, errors.New("non-hardened derivation not supported for ed25519")
	}
	data := make([]byte, 1+32+4)
	copy(data[1:], parentKey)
	binary.BigEndian.PutUint32(data[33:], index)
	I := hmacSHA512(parentChain, data)
	return I[:32], I[32:], nil
}

// PrivateKey derives the ed25519 keypair at path m / account' / index'.
func (w *HDWallet) PrivateKey(account, index uint32) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	account |= hardenedOffset
	index |= hardenedOffset

	k1, c1, err := derivePrivate(w.masterKey, w.masterChain, account)
	if err != nil {
		return nil, nil, err
	}
	k2, _, err := derivePrivate(k1, c1, index)
	if err != nil {
		return nil, nil, err
	}
	priv := ed25519.NewKeyFromSeed(k2)
	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub, nil
}

// Proposition derives account/index and returns the resulting proposition
// public key, usable directly as a box prop.
func (w *HDWallet) Proposition(account, index uint32) (core.Ed25519Pub, error) {
	_, pub, err := w.PrivateKey(account, index)
	if err != nil {
		return core.Ed25519Pub{}, err
	}
	var out core.Ed25519Pub
	copy(out[:], pub)
	return out, nil
}

// Sign derives account/index and signs msg, returning a core.Sig.
func (w *HDWallet) Sign(account, index uint32, msg []byte) (core.Sig, error) {
	priv, _, err := w.PrivateKey(account, index)
	if err != nil {
		return core.Sig{}, err
	}
	var sig core.Sig
	copy(sig[:], ed25519.Sign(priv, msg))
	return sig, nil
}

// RandomMnemonicEntropy produces cryptographically secure random entropy.
func RandomMnemonicEntropy(bits int) ([]byte, error) {
	if bits%32 != 0 {
		return nil, errors.New("entropy bits must be multiple of 32")
	}
	b := make([]byte, bits/8)
	if _, err := crand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Wipe zeroes a byte slice in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
