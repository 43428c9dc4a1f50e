package controller

import (
	"github.com/wondertwin-ai/loyaltynft/internal/records"
)

// StatusKind classifies a status message.
type StatusKind string

const (
	StatusPending StatusKind = "pending"
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
)

// Status is a user-facing notice about the last mint.
type Status struct {
	ID      uint64     `json:"id"`
	Kind    StatusKind `json:"kind"`
	Message string     `json:"message"`
}

// Decryption is the decrypted view of the selected record.
type Decryption struct {
	RecordID string            `json:"recordId"`
	Content  string            `json:"content"`
	Purchase *records.Purchase `json:"purchase,omitempty"`
}

// State is the controller's view state. It is replaced wholesale on every
// change and never mutated in place.
type State struct {
	Records    []records.Record `json:"records"`
	Loading    bool             `json:"loading"`
	Refreshing bool             `json:"refreshing"`
	Minting    bool             `json:"minting"`
	Decrypting bool             `json:"decrypting"`
	Selected   *records.Record  `json:"selected,omitempty"`
	Decrypted  *Decryption      `json:"decrypted,omitempty"`
	Status     *Status          `json:"status,omitempty"`

	// refreshSeq is the latest issued refresh token.
	refreshSeq uint64
}

type action interface{ isAction() }

type (
	refreshStarted struct{ seq uint64 }
	refreshDone    struct {
		seq     uint64
		records []records.Record
		failed  bool
	}
	mintStarted    struct{ status Status }
	mintDone       struct{ status Status }
	statusCleared  struct{ id uint64 }
	selected       struct{ record records.Record }
	deselected     struct{}
	decryptStarted struct{}
	decryptDone    struct {
		recordID string
		result   *Decryption
	}
	hidden struct{}
)

func (refreshStarted) isAction() {}
func (refreshDone) isAction()    {}
func (mintStarted) isAction()    {}
func (mintDone) isAction()       {}
func (statusCleared) isAction()  {}
func (selected) isAction()       {}
func (deselected) isAction()     {}
func (decryptStarted) isAction() {}
func (decryptDone) isAction()    {}
func (hidden) isAction()         {}

// reduce returns the state that results from applying a to s.
func reduce(s State, a action) State {
	switch a := a.(type) {
	case refreshStarted:
		s.refreshSeq = a.seq
		s.Refreshing = true
	case refreshDone:
		if a.seq != s.refreshSeq {
			return s
		}
		s.Loading = false
		s.Refreshing = false
		if !a.failed {
			s.Records = a.records
		}
	case mintStarted:
		s.Minting = true
		s.Status = &a.status
	case mintDone:
		s.Minting = false
		s.Status = &a.status
	case statusCleared:
		if s.Status != nil && (a.id == 0 || s.Status.ID == a.id) {
			s.Status = nil
		}
	case selected:
		r := a.record
		s.Selected = &r
		s.Decrypted = nil
		s.Decrypting = false
	case deselected:
		s.Selected = nil
		s.Decrypted = nil
		s.Decrypting = false
	case decryptStarted:
		s.Decrypting = true
	case decryptDone:
		if s.Selected == nil || s.Selected.ID != a.recordID || !s.Decrypting {
			return s
		}
		s.Decrypting = false
		s.Decrypted = a.result
	case hidden:
		s.Decrypted = nil
	}
	return s
}

// Stats are aggregates over a record collection.
type Stats struct {
	Total     int     `json:"total"`
	Active    int     `json:"active"`
	Bronze    int     `json:"bronze"`
	Silver    int     `json:"silver"`
	Gold      int     `json:"gold"`
	Rewards   int     `json:"rewards"`
	BronzePct float64 `json:"bronzePct"`
	SilverPct float64 `json:"silverPct"`
	GoldPct   float64 `json:"goldPct"`
}

// Summarize computes Stats. Percentages are of max(total, 1).
func Summarize(rs []records.Record) Stats {
	var st Stats
	st.Total = len(rs)
	for _, r := range rs {
		if r.Status == records.StatusActive {
			st.Active++
		}
		switch r.LoyaltyLevel {
		case records.Bronze:
			st.Bronze++
		case records.Silver:
			st.Silver++
		case records.Gold:
			st.Gold++
		}
		st.Rewards += r.Rewards
	}
	denom := float64(max(st.Total, 1))
	st.BronzePct = float64(st.Bronze) / denom * 100
	st.SilverPct = float64(st.Silver) / denom * 100
	st.GoldPct = float64(st.Gold) / denom * 100
	return st
}
