package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of bech32 ledger addresses.
const AddressPrefix = "esc"

// Address is a 20-byte ledger identity.
type Address [20]byte

// String renders the address in bech32 with AddressPrefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Hex renders the address as 0x-prefixed lowercase hex.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// DecodeAddress parses a bech32 address carrying AddressPrefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes, got %d", len(conv))
	}
	var out Address
	copy(out[:], conv)
	return out, nil
}

// ParseAddress accepts either 0x-prefixed or bare hex, or a bech32 address.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(trimmed), AddressPrefix+"1") {
		return DecodeAddress(strings.ToLower(trimmed))
	}
	if !gethcommon.IsHexAddress(trimmed) {
		return Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return Address(gethcommon.HexToAddress(trimmed)), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Address returns the ledger identity controlled by the key.
func (k *PrivateKey) Address() Address {
	return Address(crypto.PubkeyToAddress(k.PrivateKey.PublicKey))
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
