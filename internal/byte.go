package internal

import (
	"encoding/hex"
)

// StringToHex renders a raw binary digest (stored as a Go string) in hex,
// mainly for log output.
func StringToHex(s string) string {
	return hex.EncodeToString([]byte(s))
}

func HexToString(s string) (string, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
