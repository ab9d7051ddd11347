package registry

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"rpsserver/models"

	"golang.org/x/crypto/sha3"
)

// Commitment は keccak256(10進数の手 ‖ salt)
type Commitment [32]byte

// Commit hashes the decimal text of hand followed by salt. The same byte
// order must be used when committing and when revealing.
func Commit(hand models.Hand, salt string) Commitment {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strconv.FormatUint(uint64(hand), 10)))
	h.Write([]byte(salt))
	var c Commitment
	h.Sum(c[:0])
	return c
}

func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != hex.EncodedLen(len(c)) {
		return c, fmt.Errorf("commitment must be %d hex characters, got %d", hex.EncodedLen(len(c)), len(raw))
	}
	if _, err := hex.Decode(c[:], []byte(raw)); err != nil {
		return c, fmt.Errorf("commitment is not hex: %v", err)
	}
	return c, nil
}

func (c Commitment) Hex() string {
	return "0x" + hex.EncodeToString(c[:])
}

func (c Commitment) String() string {
	return c.Hex()
}

// Matches は公開された手とsaltがコミットメントを再現するか確認する
func (c Commitment) Matches(hand models.Hand, salt string) bool {
	got := Commit(hand, salt)
	return subtle.ConstantTimeCompare(got[:], c[:]) == 1
}

func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func (c *Commitment) UnmarshalText(text []byte) error {
	parsed, err := ParseCommitment(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
