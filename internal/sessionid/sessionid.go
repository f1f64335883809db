// Package sessionid generates sortable identifiers for sessions and
// hands: a short type prefix plus a UUIDv7 encoded as 26 characters of
// Crockford base32. Time-ordered ids keep hand history naturally sorted.
package sessionid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Prefixes for the id types in play.
const (
	PrefixSession = "sess"
	PrefixHand    = "hand"
)

// NewSession returns a fresh session id.
func NewSession() string {
	return PrefixSession + "_" + encode(newUUIDv7())
}

// NewHand returns a fresh hand id.
func NewHand() string {
	return PrefixHand + "_" + encode(newUUIDv7())
}

// Validate checks the prefix and base32 payload of an id.
func Validate(id, prefix string) error {
	want := prefix + "_"
	if !strings.HasPrefix(id, want) {
		return fmt.Errorf("id %q must start with %q", id, want)
	}
	payload := id[len(want):]
	if len(payload) != 26 {
		return fmt.Errorf("id payload must be 26 characters, got %d", len(payload))
	}
	if payload[0] > '7' {
		return fmt.Errorf("id payload first character must be 0-7, got %c", payload[0])
	}
	for i := 0; i < len(payload); i++ {
		if !strings.ContainsRune(alphabet, rune(payload[i])) {
			return fmt.Errorf("invalid character %c at position %d", payload[i], i)
		}
	}
	return nil
}

func newUUIDv7() [16]byte {
	var uuid [16]byte

	now := time.Now().UnixMilli()
	uuid[0] = byte(now >> 40)
	uuid[1] = byte(now >> 32)
	uuid[2] = byte(now >> 24)
	uuid[3] = byte(now >> 16)
	uuid[4] = byte(now >> 8)
	uuid[5] = byte(now)

	if _, err := rand.Read(uuid[6:]); err != nil {
		panic("sessionid: failed to read entropy: " + err.Error())
	}

	uuid[6] = (uuid[6] & 0x0f) | 0x70 // version 7
	uuid[8] = (uuid[8] & 0x3f) | 0x80 // variant 10

	return uuid
}

// encode packs 128 bits into 26 base32 characters, 5 bits at a time.
func encode(data [16]byte) string {
	result := make([]byte, 26)
	for i := 0; i < 26; i++ {
		bitOffset := i * 5
		byteIndex := bitOffset / 8
		bitIndex := bitOffset % 8

		var value uint8
		if byteIndex < 16 {
			if bitIndex <= 3 {
				value = (data[byteIndex] >> (3 - bitIndex)) & 0x1f
			} else {
				value = (data[byteIndex] << (bitIndex - 3)) & 0x1f
				if byteIndex+1 < 16 {
					value |= data[byteIndex+1] >> (11 - bitIndex)
				}
			}
		}
		result[i] = alphabet[value]
	}
	return string(result)
}
