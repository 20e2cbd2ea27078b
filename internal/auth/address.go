package auth

// address.go — derivación de direcciones bech32 a partir de claves
// secp256k1. La chain de custodia y la del venue comparten el payload
// de 20 bytes de la dirección; solo cambia el human-readable prefix,
// así que la dirección de trading se deriva re-codificando la de
// custodia.

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	custodyHRP = "cosmos"
	tradingHRP = "inj"
)

// addressFromPubKey deriva la dirección bech32 (estilo ethermint:
// keccak256 de la clave sin comprimir, últimos 20 bytes) para el hrp
// dado. pub debe ser la clave sin comprimir de 65 bytes.
func addressFromPubKey(pub []byte, hrp string) (string, error) {
	if len(pub) != 65 || pub[0] != 0x04 {
		return "", fmt.Errorf("auth.addressFromPubKey: unexpected public key encoding (%d bytes)", len(pub))
	}

	raw := crypto.Keccak256(pub[1:])[12:]
	grouped, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("auth.addressFromPubKey: %w", err)
	}
	addr, err := bech32.Encode(hrp, grouped)
	if err != nil {
		return "", fmt.Errorf("auth.addressFromPubKey: %w", err)
	}
	return addr, nil
}

// DeriveTradingAddress convierte la dirección de custodia en su
// equivalente en la chain del venue: mismo payload, distinto prefijo.
func DeriveTradingAddress(custodyAddress string) (string, error) {
	hrp, data, err := bech32.Decode(custodyAddress)
	if err != nil {
		return "", fmt.Errorf("auth.DeriveTradingAddress: decode %q: %w", custodyAddress, err)
	}
	if hrp != custodyHRP {
		return "", fmt.Errorf("auth.DeriveTradingAddress: unexpected prefix %q", hrp)
	}
	addr, err := bech32.Encode(tradingHRP, data)
	if err != nil {
		return "", fmt.Errorf("auth.DeriveTradingAddress: %w", err)
	}
	return addr, nil
}
