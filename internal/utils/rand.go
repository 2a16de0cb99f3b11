package utils

import (
	cryptorand "crypto/rand"
	"encoding/hex"
)

func TokenHex(n int) string {
	b := make([]byte, n)
	_, err := cryptorand.Read(b)
	if err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
