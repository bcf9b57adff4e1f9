package usecase

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// O + YYYYMMDDhhmmss + 4桁
func NewOrderNo(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 10000)
	}
	return fmt.Sprintf("O%s%04d", now.Format("20060102150405"), n.Int64())
}
