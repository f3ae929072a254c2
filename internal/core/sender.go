package core

import (
	"net/mail"
	"strings"
)

// ParseSender extracts the lower-cased address and domain from a From header.
// Headers that fail RFC 5322 parsing fall back to the text between angle brackets.
func ParseSender(from string) (string, string) {
	address := ""
	if addr, err := mail.ParseAddress(from); err == nil {
		address = addr.Address
	} else {
		address = from
		if start := strings.LastIndex(from, "<"); start >= 0 {
			if end := strings.Index(from[start:], ">"); end > 0 {
				address = from[start+1 : start+end]
			}
		}
	}

	address = strings.ToLower(strings.TrimSpace(address))
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return address, ""
	}
	return address, address[at+1:]
}
