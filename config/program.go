package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/Klingon-tech/pumpbox/pkg/crypto"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// =============================================================================
// Program Rules (immutable once the program state is initialized)
// =============================================================================

// Denomination constants for the base currency.
// 1 coin = 10^9 base units. All monetary values are in base units.
const (
	Decimals  = 9
	Coin      = 1_000_000_000
	MilliCoin = 1_000_000
	MicroCoin = 1_000
)

// Protocol limits. These are not configurable.
const (
	MaxTradeFeeBps       = 1_000 // 10%
	MaxTokenDecimals     = 12
	MinFulfillmentWindow = 60 // seconds
	MaxFulfillmentWindow = 7 * 86400
	MaxLaunchDurationCap = 30 * 86400
)

// ProgramConfig holds the rules every operation is checked against.
// Loaded once at startup; operations never modify it.
type ProgramConfig struct {
	// Program identity
	ProgramID types.Address `json:"program_id"`
	Name      string        `json:"name"`
	Timestamp uint64        `json:"timestamp"`

	// Initial base-currency balances (address -> base units)
	Alloc map[string]uint64 `json:"alloc"`

	Authorities Authorities `json:"authorities"`
	Fees        FeeRules    `json:"fees"`
	Mint        MintRules   `json:"mint"`
	Curve       CurveRules  `json:"curve"`
	Launch      LaunchRules `json:"launch"`
}

// Authorities are the privileged accounts of the program.
type Authorities struct {
	Program      types.Address `json:"program"`       // May start a fair launch on any token.
	Oracle       types.Address `json:"oracle"`        // Sole signer allowed to fulfill mystery boxes.
	FeeRecipient types.Address `json:"fee_recipient"` // Receives trade and creation fees.
}

// FeeRules defines protocol fees.
type FeeRules struct {
	TradeFeeBps uint16 `json:"trade_fee_bps"` // Charged on every buy and sell.
	CreationFee uint64 `json:"creation_fee"`  // Escrowed at create, paid out on fulfill.
}

// MintRules defines mystery box parameters.
type MintRules struct {
	FulfillmentWindow int64 `json:"fulfillment_window"` // Seconds the oracle has to fulfill.
}

// CurveRules defines the bonding curve copied into every new token.
// price(s) = InitialPrice + Slope*s/SlopeScale, in base units per whole token.
type CurveRules struct {
	TokenDecimals       uint8  `json:"token_decimals"`
	MaxSupply           uint64 `json:"max_supply"`    // Token base units.
	InitialPrice        uint64 `json:"initial_price"` // Base units per whole token at zero supply.
	Slope               uint64 `json:"slope"`
	KingMarketCap       uint64 `json:"king_market_cap"`       // King-of-the-hill milestone (base units).
	GraduationMarketCap uint64 `json:"graduation_market_cap"` // Graduation milestone (base units).
}

// LaunchRules bounds fair launch parameters.
type LaunchRules struct {
	MaxDuration int64 `json:"max_duration"` // Seconds between start and deadline.
}

// =============================================================================
// Testnet Identity
//
// Well-known keys for local and test deployments. DO NOT use on mainnet.
// =============================================================================

const (
	// TestnetAuthorityKey is the private key (hex) of the testnet program authority.
	TestnetAuthorityKey = "3e6ae2ffe1f5ab1abb3b5db2e467eac9052a94199516ad8eae1af2e040da1f0e"
	// TestnetOracleKey is the private key (hex) of the testnet oracle.
	TestnetOracleKey = "da1c818bd5a2656003ff86c4e2724c91b608589dc6eb0ea50883f53edaa39478"
	// TestnetFaucetKey is the private key (hex) of the funded testnet account.
	TestnetFaucetKey = "54625a0928f5cced3daad857b410d9de219a4285590259b495d571127f9e2d04"
)

// TestnetKey returns the private key for one of the well-known testnet keys.
func TestnetKey(privHex string) *crypto.PrivateKey {
	b, err := hex.DecodeString(privHex)
	if err != nil {
		panic(fmt.Sprintf("bad testnet key: %v", err))
	}
	key, err := crypto.PrivateKeyFromBytes(b)
	if err != nil {
		panic(fmt.Sprintf("bad testnet key: %v", err))
	}
	return key
}

// =============================================================================
// Pre-defined program configurations
// =============================================================================

func mustAddress(s string) types.Address {
	a, err := types.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MainnetProgram returns the mainnet program configuration.
func MainnetProgram() *ProgramConfig {
	return &ProgramConfig{
		ProgramID: mustAddress("18f47eda8d0ddd4ba1ea5527baa858c11113ae7c605f4da569dd6d2e80446f65"),
		Name:      "PumpBox Mainnet",
		Timestamp: 1789776000, // 2026-09-19
		Alloc:     map[string]uint64{},
		Authorities: Authorities{
			Program:      mustAddress("2b7755d34c6ea96d012d4d325ad6ad4883f936bfa5ce4536a2d6ca0b9c72a064"),
			Oracle:       mustAddress("932592985158b52d7a7e81a0b33497359b55dd6453329620bf3698baa04dafcb"),
			FeeRecipient: mustAddress("9211326d6c8be3539aa1058eff5f8bdf54bd5dda6a9e2dab3bca2affc163ed04"),
		},
		Fees: FeeRules{
			TradeFeeBps: 100,            // 1%
			CreationFee: 20 * MilliCoin, // 0.02 coin
		},
		Mint: MintRules{
			FulfillmentWindow: 3600, // 1 hour
		},
		Curve: CurveRules{
			TokenDecimals:       6,
			MaxSupply:           1_000_000_000 * 1_000_000, // 1B tokens
			InitialPrice:        4_000,                     // 4,000 coin initial market cap
			Slope:               96_000,                    // 100,000 coin market cap at max supply
			KingMarketCap:       30_000 * Coin,
			GraduationMarketCap: 69_000 * Coin,
		},
		Launch: LaunchRules{
			MaxDuration: 7 * 86400,
		},
	}
}

// TestnetProgram returns the testnet program configuration.
func TestnetProgram() *ProgramConfig {
	p := MainnetProgram()
	p.ProgramID = mustAddress("4cb7cf7d2dc55537ccae0a3471bfca54765ad3192c93ef1537c49fa53494c9f7")
	p.Name = "PumpBox Testnet"

	authority := TestnetKey(TestnetAuthorityKey).Address()
	p.Authorities = Authorities{
		Program:      authority,
		Oracle:       TestnetKey(TestnetOracleKey).Address(),
		FeeRecipient: authority,
	}

	// Shorter windows for testing.
	p.Mint.FulfillmentWindow = 300
	p.Launch.MaxDuration = 86400
	p.Fees.CreationFee = MilliCoin

	p.Alloc = map[string]uint64{
		TestnetKey(TestnetFaucetKey).Address().String(): 1_000_000 * Coin,
	}
	return p
}

// ProgramFor returns the program config for the given network.
func ProgramFor(network NetworkType) *ProgramConfig {
	switch network {
	case Testnet:
		return TestnetProgram()
	default:
		return MainnetProgram()
	}
}

// =============================================================================
// Program config file I/O
// =============================================================================

// LoadProgram loads a program configuration from a JSON file.
func LoadProgram(path string) (*ProgramConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program file: %w", err)
	}

	var p ProgramConfig
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing program file: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid program config: %w", err)
	}

	return &p, nil
}

// Save writes the program configuration to a file.
func (p *ProgramConfig) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding program config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing program file: %w", err)
	}
	return nil
}

// Validate checks that the program configuration is usable.
func (p *ProgramConfig) Validate() error {
	if p.ProgramID.IsZero() {
		return fmt.Errorf("program_id is required")
	}
	if p.Authorities.Oracle.IsZero() {
		return fmt.Errorf("authorities.oracle is required")
	}
	if p.Authorities.Program.IsZero() {
		return fmt.Errorf("authorities.program is required")
	}
	if p.Authorities.FeeRecipient.IsZero() {
		return fmt.Errorf("authorities.fee_recipient is required")
	}

	if p.Fees.TradeFeeBps > MaxTradeFeeBps {
		return fmt.Errorf("trade_fee_bps %d exceeds max %d", p.Fees.TradeFeeBps, MaxTradeFeeBps)
	}

	if p.Mint.FulfillmentWindow < MinFulfillmentWindow || p.Mint.FulfillmentWindow > MaxFulfillmentWindow {
		return fmt.Errorf("fulfillment_window must be between %d and %d seconds",
			MinFulfillmentWindow, MaxFulfillmentWindow)
	}

	c := p.Curve
	if c.TokenDecimals > MaxTokenDecimals {
		return fmt.Errorf("token_decimals must be at most %d", MaxTokenDecimals)
	}
	if c.MaxSupply == 0 {
		return fmt.Errorf("max_supply must be positive")
	}
	if c.InitialPrice == 0 {
		return fmt.Errorf("initial_price must be positive")
	}
	if c.KingMarketCap > 0 && c.GraduationMarketCap > 0 && c.KingMarketCap > c.GraduationMarketCap {
		return fmt.Errorf("king_market_cap must not exceed graduation_market_cap")
	}

	if p.Launch.MaxDuration <= 0 || p.Launch.MaxDuration > MaxLaunchDurationCap {
		return fmt.Errorf("launch max_duration must be between 1 and %d seconds", MaxLaunchDurationCap)
	}

	// Validate alloc addresses and check the total fits in uint64.
	var total uint64
	for addrStr, v := range p.Alloc {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		if total > math.MaxUint64-v {
			return fmt.Errorf("alloc total overflows")
		}
		total += v
	}
	return nil
}

// Hash returns a BLAKE3 hash of the program configuration.
// Stored with the state to detect a config swapped under existing data.
func (p *ProgramConfig) Hash() (types.Hash, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
