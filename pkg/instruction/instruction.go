// Package instruction defines the closed set of program instructions and
// their wire form: an 8-byte discriminator followed by a borsh payload.
package instruction

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// Kind tags an instruction variant.
type Kind uint8

const (
	KindCreate Kind = iota + 1
	KindFulfill
	KindReclaim
	KindBuy
	KindSell
	KindStartFairLaunch
	KindFinalize
)

// DiscriminatorSize is the length of the instruction tag.
const DiscriminatorSize = 8

// Discriminator is the first 8 bytes of SHA256("global:<method>").
type Discriminator [DiscriminatorSize]byte

var (
	ErrShortData       = errors.New("instruction data shorter than discriminator")
	ErrUnknownKind     = errors.New("unknown instruction discriminator")
	ErrTrailingBytes   = errors.New("trailing bytes after instruction payload")
	ErrPayloadEncoding = errors.New("payload encoding failed")
)

var methodNames = map[Kind]string{
	KindCreate:          "create_token",
	KindFulfill:         "fulfill_mystery_box",
	KindReclaim:         "reclaim_expired",
	KindBuy:             "buy",
	KindSell:            "sell",
	KindStartFairLaunch: "start_fair_launch",
	KindFinalize:        "finalize_fair_launch",
}

var (
	discriminators = make(map[Kind]Discriminator, len(methodNames))
	kindsByDisc    = make(map[Discriminator]Kind, len(methodNames))
)

func init() {
	for k, name := range methodNames {
		d := MethodDiscriminator(name)
		discriminators[k] = d
		kindsByDisc[d] = k
	}
}

// MethodDiscriminator computes the tag for a snake_case method name.
func MethodDiscriminator(name string) Discriminator {
	sum := sha256.Sum256([]byte("global:" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// String returns the method name of the kind.
func (k Kind) String() string {
	if name, ok := methodNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Discriminator returns the wire tag of the kind.
func (k Kind) Discriminator() Discriminator {
	return discriminators[k]
}

// Payload is implemented by every instruction variant. The set is closed:
// only types in this package satisfy it.
type Payload interface {
	Kind() Kind
	sealed()
}

// CreateToken opens a mystery box.
type CreateToken struct {
	Description string
	Preferences []string
	SocialLink  string
}

// FulfillMysteryBox sets the generated identity. Oracle only.
type FulfillMysteryBox struct {
	Name     string
	Ticker   string
	ImageRef string
}

// ReclaimExpired refunds an unfulfilled box after its deadline.
type ReclaimExpired struct{}

// Buy spends AmountIn base units on the curve.
type Buy struct {
	AmountIn     uint64
	MinTokensOut uint64
}

// Sell burns TokensIn against the reserve.
type Sell struct {
	TokensIn   uint64
	MinBaseOut uint64
}

// StartFairLaunch moves a trading token into capped fair launch.
type StartFairLaunch struct {
	PerWalletCap uint64
	GlobalCap    uint64
	Deadline     int64
}

// FinalizeFairLaunch opens unrestricted trading.
type FinalizeFairLaunch struct{}

func (CreateToken) Kind() Kind        { return KindCreate }
func (FulfillMysteryBox) Kind() Kind  { return KindFulfill }
func (ReclaimExpired) Kind() Kind     { return KindReclaim }
func (Buy) Kind() Kind                { return KindBuy }
func (Sell) Kind() Kind               { return KindSell }
func (StartFairLaunch) Kind() Kind    { return KindStartFairLaunch }
func (FinalizeFairLaunch) Kind() Kind { return KindFinalize }

func (CreateToken) sealed()        {}
func (FulfillMysteryBox) sealed()  {}
func (ReclaimExpired) sealed()     {}
func (Buy) sealed()                {}
func (Sell) sealed()               {}
func (StartFairLaunch) sealed()    {}
func (FinalizeFairLaunch) sealed() {}

// Encode serializes p as discriminator || borsh(p).
func Encode(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	d := p.Kind().Discriminator()
	buf.Write(d[:])
	if err := bin.NewBorshEncoder(&buf).Encode(p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadEncoding, p.Kind(), err)
	}
	return buf.Bytes(), nil
}

// Decode parses instruction data into its variant. The payload must be
// consumed exactly.
func Decode(data []byte) (Payload, error) {
	if len(data) < DiscriminatorSize {
		return nil, ErrShortData
	}
	var d Discriminator
	copy(d[:], data[:DiscriminatorSize])
	kind, ok := kindsByDisc[d]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrUnknownKind, d)
	}

	dec := bin.NewBorshDecoder(data[DiscriminatorSize:])
	var (
		p   Payload
		err error
	)
	switch kind {
	case KindCreate:
		var v CreateToken
		err = dec.Decode(&v)
		p = v
	case KindFulfill:
		var v FulfillMysteryBox
		err = dec.Decode(&v)
		p = v
	case KindReclaim:
		p = ReclaimExpired{}
	case KindBuy:
		var v Buy
		err = dec.Decode(&v)
		p = v
	case KindSell:
		var v Sell
		err = dec.Decode(&v)
		p = v
	case KindStartFairLaunch:
		var v StartFairLaunch
		err = dec.Decode(&v)
		p = v
	case KindFinalize:
		p = FinalizeFairLaunch{}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	if dec.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %s: %d bytes", ErrTrailingBytes, kind, dec.Remaining())
	}
	return p, nil
}
