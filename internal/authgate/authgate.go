// Package authgate gates payload decoding behind a wallet signature over a
// decryption challenge, followed by an artificial processing delay.
package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wondertwin-ai/loyaltynft/internal/codec"
	"github.com/wondertwin-ai/loyaltynft/internal/wallet"
)

// Defaults applied by New.
const (
	DefaultDelay        = 1500 * time.Millisecond
	DefaultDurationDays = 30
)

// ErrSignerMismatch is returned when signature verification recovers an
// address other than the identity's.
var ErrSignerMismatch = errors.New("signature does not match wallet address")

// Challenge is the message a wallet signs to authorize decryption.
type Challenge struct {
	PublicKey       string
	ContractAddress string
	ChainID         int64
	StartTimestamp  int64
	DurationDays    int
}

// Message renders the challenge in its signed text form.
func (c Challenge) Message() string {
	return fmt.Sprintf("publickey:%s\ncontractAddresses:%s\ncontractsChainId:%d\nstartTimestamp:%d\ndurationDays:%d",
		c.PublicKey, c.ContractAddress, c.ChainID, c.StartTimestamp, c.DurationDays)
}

// Options configure a Gate.
type Options struct {
	ContractAddress  string
	ChainID          int64
	DurationDays     int
	Delay            time.Duration
	VerifySignatures bool
	Codec            codec.Codec
	Logger           *slog.Logger
	Now              func() time.Time
}

// Gate authorizes and performs decryption.
type Gate struct {
	challenge Challenge
	delay     time.Duration
	verify    bool
	codec     codec.Codec
	logger    *slog.Logger
}

// New creates a Gate. Its public key material comes from a fresh secp256k1
// key generated once, and the start timestamp is the creation time.
func New(opts Options) (*Gate, error) {
	if opts.DurationDays == 0 {
		opts.DurationDays = DefaultDurationDays
	}
	if opts.Delay == 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Codec == nil {
		opts.Codec = codec.Placeholder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ephemeral, err := wallet.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}

	return &Gate{
		challenge: Challenge{
			PublicKey:       ephemeral.PublicKeyHex(),
			ContractAddress: opts.ContractAddress,
			ChainID:         opts.ChainID,
			StartTimestamp:  opts.Now().Unix(),
			DurationDays:    opts.DurationDays,
		},
		delay:  opts.Delay,
		verify: opts.VerifySignatures,
		codec:  opts.Codec,
		logger: opts.Logger,
	}, nil
}

// Challenge returns the challenge signed on every decrypt.
func (g *Gate) Challenge() Challenge {
	return g.challenge
}

// Decrypt asks id to sign the challenge, waits the configured delay and
// decodes ciphertext. A declined signature returns wallet.ErrUserRejected
// and no content.
func (g *Gate) Decrypt(ctx context.Context, id wallet.Identity, ciphertext string) (string, error) {
	if id == nil || !id.Connected() {
		return "", wallet.ErrNotConnected
	}

	msg := g.challenge.Message()
	sig, err := id.SignMessage(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("authorize decryption: %w", err)
	}

	if g.verify {
		signer, err := wallet.RecoverAddress(msg, sig)
		if err != nil {
			return "", fmt.Errorf("verify signature: %w", err)
		}
		if !wallet.SameAddress(signer, id.Address()) {
			g.logger.Warn("decrypt signature mismatch", "wallet", id.Address(), "signer", signer)
			return "", ErrSignerMismatch
		}
	}

	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	plaintext, err := g.codec.Decode(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}
	return plaintext, nil
}
