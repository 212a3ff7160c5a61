package valueobject

import (
	"strings"
)

// NormalizePhoneNumber converts a WhatsApp JID such as
// "6285179971457:52@s.whatsapp.net" into an E.164-style number with a
// leading +. The device suffix after ':' and the server after '@' are
// dropped. Invalid inputs yield the empty string.
//
// Normalization is idempotent: feeding the output back in returns the
// same value.
func NormalizePhoneNumber(jid string) string {
	if jid == "" {
		return ""
	}

	number := jid
	if idx := strings.IndexByte(number, ':'); idx >= 0 {
		number = number[:idx]
	}
	if idx := strings.IndexByte(number, '@'); idx >= 0 {
		number = number[:idx]
	}

	number = strings.TrimPrefix(number, "+")
	if number == "" {
		return ""
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return ""
		}
	}

	return "+" + number
}

// JIDUser extracts the bare number from a JID without adding the + prefix.
// Returns the empty string for any input NormalizePhoneNumber rejects.
func JIDUser(jid string) string {
	n := NormalizePhoneNumber(jid)
	return strings.TrimPrefix(n, "+")
}

// ToUserJID renders a phone number (with or without +) as a user JID
// suitable for the protocol library.
func ToUserJID(phone string) string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "+")
	if phone == "" {
		return ""
	}
	if strings.ContainsRune(phone, '@') {
		return phone // already a JID
	}
	return phone + "@s.whatsapp.net"
}
