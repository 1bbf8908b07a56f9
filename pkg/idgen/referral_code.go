package idgen

import (
	"crypto/rand"
	"math/big"
)

const (
	ReferralCodeLength   = 6
	referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// ReferralCode 生成邀请码，去掉了易混淆的 0/O、1/I
func ReferralCode() (string, error) {
	limit := big.NewInt(int64(len(referralCodeAlphabet)))
	buf := make([]byte, ReferralCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = referralCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
