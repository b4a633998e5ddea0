// Copyright 2025 ZeroXBridge
//
// Felt helpers: Cairo short-string encoding and calldata file parsing.

package starknet

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
)

// StringToFeltHex byte-encodes the ASCII string as a hex literal, the form
// the verifier contract expects for its string parameters:
// "stone6" -> 0x73746f6e6536.
func StringToFeltHex(s string) string {
	return "0x" + hex.EncodeToString([]byte(s))
}

// StringToFelt converts an ASCII string into a field element via its hex
// encoding. The empty string encodes to zero.
func StringToFelt(s string) (*felt.Felt, error) {
	if len(s) > 31 {
		return nil, fmt.Errorf("string %q exceeds 31 bytes", s)
	}
	if s == "" {
		return new(felt.Felt), nil
	}
	f, err := new(felt.Felt).SetString(StringToFeltHex(s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q as felt: %w", s, err)
	}
	return f, nil
}

// CalldataToBytes serializes felts as consecutive big-endian 32-byte
// words, the blob format the journal stores for relay proofs.
func CalldataToBytes(calldata []*felt.Felt) []byte {
	out := make([]byte, 0, len(calldata)*32)
	for _, f := range calldata {
		word := f.Bytes()
		out = append(out, word[:]...)
	}
	return out
}

// ReadCalldataFile parses one calldata file: whitespace-separated hex
// scalars, multi-line permitted, blank lines ignored. Every token must
// parse as a field element.
func ReadCalldataFile(path string) ([]*felt.Felt, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calldata file %s: %w", path, err)
	}
	return ParseCalldata(string(content), path)
}

// ParseCalldata parses calldata file content. The name is used in error
// messages only.
func ParseCalldata(content, name string) ([]*felt.Felt, error) {
	var calldata []*felt.Felt
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, token := range strings.Fields(line) {
			value := token
			if !strings.HasPrefix(value, "0x") {
				value = "0x" + value
			}
			f, err := new(felt.Felt).SetString(value)
			if err != nil {
				return nil, fmt.Errorf("invalid hex value %q in %s: %w", token, name, err)
			}
			calldata = append(calldata, f)
		}
	}
	return calldata, nil
}
