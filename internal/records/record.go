// Package records stores loyalty-NFT records in a key/value contract: one
// JSON value per record under "nft_<id>" and an index of ids under
// "nft_keys".
package records

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/wondertwin-ai/loyaltynft/internal/wallet"
)

// Contract keys.
const (
	IndexKey  = "nft_keys"
	KeyPrefix = "nft_"
)

var (
	ErrInvalidAmount  = errors.New("purchase amount must be a number")
	ErrNoOwner        = errors.New("record owner is required")
	ErrMalformedIndex = errors.New("record index is malformed")
	ErrNotFound       = errors.New("record not found")
)

// Level is a loyalty tier.
type Level int

const (
	Bronze Level = 1
	Silver Level = 2
	Gold   Level = 3
)

func (l Level) String() string {
	switch l {
	case Gold:
		return "Gold"
	case Silver:
		return "Silver"
	case Bronze:
		return "Bronze"
	}
	return "Level " + strconv.Itoa(int(l))
}

// Status of a record. Records are minted active and never change status.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Record is a minted loyalty NFT.
type Record struct {
	ID            string `json:"id"`
	EncryptedData string `json:"encryptedData"`
	Timestamp     int64  `json:"timestamp"`
	Owner         string `json:"owner"`
	LoyaltyLevel  Level  `json:"loyaltyLevel"`
	Rewards       int    `json:"rewards"`
	Status        Status `json:"status"`
}

// Purchase is the plaintext payload encoded into a record.
type Purchase struct {
	PurchaseAmount  string `json:"purchaseAmount"`
	ProductCategory string `json:"productCategory"`
	LoyaltyLevel    Level  `json:"loyaltyLevel"`
	Rewards         int    `json:"rewards"`
	Timestamp       int64  `json:"timestamp"` // unix millis
}

// ParsePurchase parses decoded record content.
func ParsePurchase(plaintext string) (Purchase, error) {
	var p Purchase
	if err := json.Unmarshal([]byte(plaintext), &p); err != nil {
		return Purchase{}, err
	}
	return p, nil
}

// MintRequest is the user input for a new record.
type MintRequest struct {
	PurchaseAmount  string `json:"purchaseAmount"`
	ProductCategory string `json:"productCategory"`
}

// Amount parses PurchaseAmount.
func (m MintRequest) Amount() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(m.PurchaseAmount), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// Tier maps a purchase amount to its level and reward points. Thresholds
// are exclusive.
func Tier(amount float64) (Level, int) {
	switch {
	case amount > 1000:
		return Gold, 100
	case amount > 500:
		return Silver, 50
	default:
		return Bronze, 10
	}
}

// IsOwner reports whether address owns r, ignoring case.
func IsOwner(r Record, address string) bool {
	return wallet.SameAddress(r.Owner, address)
}

// Mine returns the records owned by address, preserving order.
func Mine(rs []Record, address string) []Record {
	out := make([]Record, 0, len(rs))
	for _, r := range rs {
		if IsOwner(r, address) {
			out = append(out, r)
		}
	}
	return out
}

// stored is the contract value of a record.
type stored struct {
	Data         string `json:"data"`
	Timestamp    int64  `json:"timestamp"`
	Owner        string `json:"owner"`
	LoyaltyLevel Level  `json:"loyaltyLevel"`
	Rewards      int    `json:"rewards"`
	Status       Status `json:"status"`
}

func encodeRecord(r Record) ([]byte, error) {
	return json.Marshal(stored{
		Data:         r.EncryptedData,
		Timestamp:    r.Timestamp,
		Owner:        r.Owner,
		LoyaltyLevel: r.LoyaltyLevel,
		Rewards:      r.Rewards,
		Status:       r.Status,
	})
}

// decodeRecord parses a stored value, filling in defaults for missing
// level, rewards and status.
func decodeRecord(id string, raw []byte) (Record, error) {
	var s stored
	if err := json.Unmarshal(raw, &s); err != nil {
		return Record{}, err
	}
	if s.LoyaltyLevel == 0 {
		s.LoyaltyLevel = Bronze
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	return Record{
		ID:            id,
		EncryptedData: s.Data,
		Timestamp:     s.Timestamp,
		Owner:         s.Owner,
		LoyaltyLevel:  s.LoyaltyLevel,
		Rewards:       s.Rewards,
		Status:        s.Status,
	}, nil
}
