package mint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/internal/storage"
	"github.com/Klingon-tech/pumpbox/pkg/instruction"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

const t0 = int64(1_800_000_000)

var creator = types.Address{0xc1}

type fixture struct {
	cfg    *config.ProgramConfig
	store  *state.Store
	minter *Minter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.TestnetProgram()
	cfg.Alloc = map[string]uint64{creator.String(): 10 * config.MilliCoin}
	s := state.NewStore(storage.NewMemory())
	_, err := s.Init(cfg)
	require.NoError(t, err)
	return &fixture{cfg: cfg, store: s, minter: New(cfg)}
}

func (f *fixture) oracle() types.Address { return f.cfg.Authorities.Oracle }

var cosmic = instruction.CreateToken{
	Description: "A cosmic memecoin",
	Preferences: []string{"funny", "sci-fi"},
	SocialLink:  "https://t.me/x",
}

var shiba = instruction.FulfillMysteryBox{
	Name:     "CosmicShiba",
	Ticker:   "CSHIB",
	ImageRef: "ipfs://img",
}

// create commits a new box and returns its record.
func (f *fixture) create(t *testing.T) *state.TokenRecord {
	t.Helper()
	_, addr, err := NextRecord(f.store, f.cfg.ProgramID, creator)
	require.NoError(t, err)

	cs := f.store.Begin()
	rec, err := f.minter.Create(cs, creator, addr, cosmic, t0)
	require.NoError(t, err)
	require.NoError(t, cs.Commit())
	return rec
}

func (f *fixture) reload(t *testing.T, addr types.Address) (*state.Changeset, *state.TokenRecord) {
	t.Helper()
	cs := f.store.Begin()
	rec, err := cs.Record(addr)
	require.NoError(t, err)
	return cs, rec
}

func (f *fixture) balance(t *testing.T, addr types.Address) uint64 {
	t.Helper()
	b, err := f.store.Balance(addr)
	require.NoError(t, err)
	return b
}

func TestCreateFulfill_CosmicShiba(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)

	require.Equal(t, types.PhasePendingGeneration, rec.Phase)
	require.Equal(t, "A cosmic memecoin", rec.Description)
	require.Equal(t, []string{"funny", "sci-fi"}, rec.Preferences)
	require.Equal(t, t0+f.cfg.Mint.FulfillmentWindow, rec.FulfillDeadline)
	require.Equal(t, f.cfg.Fees.CreationFee, rec.FeeEscrow)
	require.False(t, rec.IdentitySet())
	require.Equal(t, uint64(10*config.MilliCoin)-f.cfg.Fees.CreationFee, f.balance(t, creator))

	cs, rec := f.reload(t, rec.Address)
	require.NoError(t, f.minter.Fulfill(cs, f.oracle(), rec, shiba, t0+10))
	require.NoError(t, cs.Commit())

	got, err := f.store.Record(rec.Address)
	require.NoError(t, err)
	require.Equal(t, types.PhaseTrading, got.Phase)
	require.Equal(t, "CosmicShiba", got.Name)
	require.Equal(t, "CSHIB", got.Ticker)
	require.Equal(t, "ipfs://img", got.ImageRef)
	require.Zero(t, got.FeeEscrow)
	require.Equal(t, f.cfg.Fees.CreationFee, f.balance(t, f.cfg.Authorities.FeeRecipient))

	// Identity is written exactly once.
	cs, rec = f.reload(t, rec.Address)
	other := shiba
	other.Ticker = "OTHER"
	require.ErrorIs(t, f.minter.Fulfill(cs, f.oracle(), rec, other, t0+20), state.ErrAlreadyFulfilled)
}

func TestCreate_SequentialMints(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	b := f.create(t)
	require.NotEqual(t, a.Mint, b.Mint)
	require.NotEqual(t, a.Address, b.Address)
}

func TestCreate_Errors(t *testing.T) {
	f := newFixture(t)
	_, addr, err := NextRecord(f.store, f.cfg.ProgramID, creator)
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(p *instruction.CreateToken)
		who     types.Address
		record  types.Address
		wantErr error
	}{
		{"blank description", func(p *instruction.CreateToken) { p.Description = "   " }, creator, addr, state.ErrInvalidDescription},
		{"bad link", func(p *instruction.CreateToken) { p.SocialLink = "t.me/x" }, creator, addr, state.ErrInvalidSocialLink},
		{"empty tag", func(p *instruction.CreateToken) { p.Preferences = []string{"ok", " "} }, creator, addr, state.ErrInvalidPreferences},
		{"wrong record", func(p *instruction.CreateToken) {}, creator, types.Address{0x99}, state.ErrAccountMismatch},
		{"no funds", func(p *instruction.CreateToken) {}, types.Address{0x55}, types.Address{}, state.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := cosmic
			p.Preferences = append([]string(nil), cosmic.Preferences...)
			tt.mutate(&p)
			record := tt.record
			if record.IsZero() {
				_, record, err = NextRecord(f.store, f.cfg.ProgramID, tt.who)
				require.NoError(t, err)
			}
			_, err := f.minter.Create(f.store.Begin(), tt.who, record, p, t0)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFulfill_Errors(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)

	cs, r := f.reload(t, rec.Address)
	require.ErrorIs(t, f.minter.Fulfill(cs, creator, r, shiba, t0+1), state.ErrUnauthorized)

	cs, r = f.reload(t, rec.Address)
	err := f.minter.Fulfill(cs, f.oracle(), r, shiba, rec.FulfillDeadline+1)
	require.ErrorIs(t, err, state.ErrExpired)
	require.True(t, state.Retryable(err))

	// Exactly at the deadline is still in time.
	cs, r = f.reload(t, rec.Address)
	bad := shiba
	bad.Ticker = "cshib"
	require.ErrorIs(t, f.minter.Fulfill(cs, f.oracle(), r, bad, rec.FulfillDeadline), state.ErrInvalidTicker)

	cs, r = f.reload(t, rec.Address)
	bad = shiba
	bad.ImageRef = "ftp://img"
	require.ErrorIs(t, f.minter.Fulfill(cs, f.oracle(), r, bad, t0+1), state.ErrInvalidImageRef)

	cs, r = f.reload(t, rec.Address)
	bad = shiba
	bad.Name = " Shiba"
	require.ErrorIs(t, f.minter.Fulfill(cs, f.oracle(), r, bad, t0+1), state.ErrInvalidName)
}

func TestFulfill_TickerTaken(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	b := f.create(t)

	cs, r := f.reload(t, a.Address)
	require.NoError(t, f.minter.Fulfill(cs, f.oracle(), r, shiba, t0+1))
	require.NoError(t, cs.Commit())

	cs, r = f.reload(t, b.Address)
	require.ErrorIs(t, f.minter.Fulfill(cs, f.oracle(), r, shiba, t0+1), state.ErrTickerTaken)
}

func TestReclaim(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)
	before := f.balance(t, creator)

	cs, r := f.reload(t, rec.Address)
	require.ErrorIs(t, f.minter.Reclaim(cs, creator, r, rec.FulfillDeadline), state.ErrNotExpired)

	cs, r = f.reload(t, rec.Address)
	require.ErrorIs(t, f.minter.Reclaim(cs, f.oracle(), r, rec.FulfillDeadline+1), state.ErrUnauthorized)

	cs, r = f.reload(t, rec.Address)
	require.NoError(t, f.minter.Reclaim(cs, creator, r, rec.FulfillDeadline+1))
	require.NoError(t, cs.Commit())

	got, err := f.store.Record(rec.Address)
	require.NoError(t, err)
	require.True(t, got.Inactive)
	require.Zero(t, got.FeeEscrow)
	require.Equal(t, before+f.cfg.Fees.CreationFee, f.balance(t, creator))

	// Terminal: no fulfill, no second reclaim.
	cs, r = f.reload(t, rec.Address)
	require.ErrorIs(t, f.minter.Fulfill(cs, f.oracle(), r, shiba, t0+1), state.ErrInactive)
	require.ErrorIs(t, f.minter.Reclaim(cs, creator, r, rec.FulfillDeadline+1), state.ErrInactive)
}

func TestReclaim_AfterFulfill(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)

	cs, r := f.reload(t, rec.Address)
	require.NoError(t, f.minter.Fulfill(cs, f.oracle(), r, shiba, t0+1))
	require.NoError(t, cs.Commit())

	cs, r = f.reload(t, rec.Address)
	require.ErrorIs(t, f.minter.Reclaim(cs, creator, r, rec.FulfillDeadline+1), state.ErrAlreadyFulfilled)
}
