// Package state holds the account model of the program: token records,
// base balances, token holdings, the fair launch allocation ledger and the
// indexes around them.
//
// All mutation goes through a Changeset. A changeset buffers writes on top
// of the committed store and lands them in one storage batch, so a request
// either applies completely or not at all.
package state

import (
	"fmt"

	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// CurveParams are the bonding curve parameters of one token. They are copied
// from the program config at create time and never change afterwards.
type CurveParams struct {
	TokenDecimals uint8  `json:"token_decimals"`
	MaxSupply     uint64 `json:"max_supply"`
	InitialPrice  uint64 `json:"initial_price"`
	Slope         uint64 `json:"slope"`
}

// LaunchState is the fair launch admission state of a token.
type LaunchState struct {
	PerWalletCap uint64 `json:"per_wallet_cap"`
	GlobalCap    uint64 `json:"global_cap"`
	Allocated    uint64 `json:"allocated"`
	Deadline     int64  `json:"deadline"`
	StartedAt    int64  `json:"started_at"`
}

// TokenRecord is the program-owned account of one minted token.
type TokenRecord struct {
	Address   types.Address `json:"address"`
	Mint      types.Address `json:"mint"`
	Creator   types.Address `json:"creator"`
	CreatedAt int64         `json:"created_at"`

	Description string   `json:"description"`
	Preferences []string `json:"preferences"`
	SocialLink  string   `json:"social_link"`

	Name        string `json:"name,omitempty"`
	Ticker      string `json:"ticker,omitempty"`
	ImageRef    string `json:"image_ref,omitempty"`
	FulfilledAt int64  `json:"fulfilled_at,omitempty"`

	Phase           types.Phase `json:"phase"`
	Inactive        bool        `json:"inactive"`
	FulfillDeadline int64       `json:"fulfill_deadline"`
	FeeEscrow       uint64      `json:"fee_escrow"`

	Curve   CurveParams `json:"curve"`
	Reserve uint64      `json:"reserve"`
	Supply  uint64      `json:"supply"`

	Launch      *LaunchState `json:"launch,omitempty"`
	FinalizedAt int64        `json:"finalized_at,omitempty"`

	KingOfTheHillAt   int64 `json:"king_of_the_hill_at,omitempty"`
	GraduationReadyAt int64 `json:"graduation_ready_at,omitempty"`
}

// Clone returns a deep copy.
func (r *TokenRecord) Clone() *TokenRecord {
	c := *r
	if r.Preferences != nil {
		c.Preferences = append([]string(nil), r.Preferences...)
	}
	if r.Launch != nil {
		l := *r.Launch
		c.Launch = &l
	}
	return &c
}

// IdentitySet reports whether any generated identity field is filled in.
func (r *TokenRecord) IdentitySet() bool {
	return r.Name != "" || r.Ticker != "" || r.ImageRef != ""
}

// Advance moves the record to the next phase. Phases only move forward one
// step at a time.
func (r *TokenRecord) Advance(next types.Phase) error {
	if !r.Phase.CanAdvanceTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidPhase, r.Phase, next)
	}
	r.Phase = next
	return nil
}

// Holding is a token balance of one owner for one mint.
type Holding struct {
	Mint   types.Address `json:"mint"`
	Owner  types.Address `json:"owner"`
	Amount uint64        `json:"amount"`
}

// Allocation is a fair launch ledger entry: base currency a participant has
// spent during the launch.
type Allocation struct {
	Mint        types.Address `json:"mint"`
	Participant types.Address `json:"participant"`
	Amount      uint64        `json:"amount"`
}
