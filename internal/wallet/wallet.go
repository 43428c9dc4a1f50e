// Package wallet provides the identity that owns records and signs
// authorization messages: a secp256k1 key producing EIP-191 personal-sign
// signatures.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrUserRejected is returned when the user declines a signature request.
	ErrUserRejected = errors.New("user rejected request")
	// ErrNotConnected is returned when no wallet is connected.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrInvalidSignature is returned for signatures that cannot be recovered.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrReadOnly is returned when a watch-only identity is asked to sign.
	ErrReadOnly = errors.New("read-only wallet cannot sign")
)

// Identity is a connected account able to sign messages.
type Identity interface {
	Address() string
	Connected() bool
	SignMessage(ctx context.Context, message string) ([]byte, error)
}

// Wallet is a local secp256k1 account.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Generate creates a wallet with a fresh random key.
func Generate() (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return fromKey(key), nil
}

// FromHex loads a wallet from a hex private key, with or without 0x.
func FromHex(hexKey string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return fromKey(key), nil
}

func fromKey(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address returns the checksummed address.
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// Connected always reports true for a loaded key.
func (w *Wallet) Connected() bool {
	return true
}

// PrivateKeyHex returns the 0x-prefixed private key.
func (w *Wallet) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(w.key))
}

// PublicKeyHex returns the 0x-prefixed uncompressed public key.
func (w *Wallet) PublicKeyHex() string {
	return hexutil.Encode(crypto.FromECDSAPub(&w.key.PublicKey))
}

// SignMessage signs the EIP-191 personal message hash of message. The
// recovery id is returned as 27/28, as wallets do.
func (w *Wallet) SignMessage(ctx context.Context, message string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverAddress returns the checksummed address that produced sig over the
// personal message hash of message.
func RecoverAddress(message string, sig []byte) (string, error) {
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// Disconnected is the identity of a session without a wallet.
type Disconnected struct{}

func (Disconnected) Address() string { return "" }
func (Disconnected) Connected() bool { return false }
func (Disconnected) SignMessage(context.Context, string) ([]byte, error) {
	return nil, ErrNotConnected
}

// Rejecting wraps an identity whose user declines every signature request.
type Rejecting struct {
	Identity
}

// SignMessage always fails with ErrUserRejected.
func (Rejecting) SignMessage(context.Context, string) ([]byte, error) {
	return nil, ErrUserRejected
}

// Watch is a read-only identity: it owns an address but cannot sign.
// Requests carrying only an address header are served with it.
type Watch string

func (w Watch) Address() string { return string(w) }
func (w Watch) Connected() bool { return w != "" }
func (Watch) SignMessage(context.Context, string) ([]byte, error) {
	return nil, ErrReadOnly
}

// IsReadOnly reports whether id can only be watched.
func IsReadOnly(id Identity) bool {
	_, ok := id.(Watch)
	return ok
}
