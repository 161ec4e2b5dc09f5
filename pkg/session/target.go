package session

import (
	"strings"
)

// AddressSeparator splits the platform token from the raw id.
const AddressSeparator = "|"

// Target identifies where a session sends and who it speaks for.
type Target struct {
	TargetFrom string `json:"target_from"`
	TargetID   string `json:"target_id"`
	SenderFrom string `json:"sender_from"`
	SenderID   string `json:"sender_id"`
}

// TargetKey returns the composite "platform|id" of the target.
func (t Target) TargetKey() string {
	return t.TargetFrom + AddressSeparator + t.TargetID
}

// SenderKey returns the composite "platform|id" of the sender.
func (t Target) SenderKey() string {
	return t.SenderFrom + AddressSeparator + t.SenderID
}

// Address joins a platform token and raw id.
func Address(platform string, id string) string {
	return platform + AddressSeparator + id
}

// ParseAddress strips a recognized platform token from id. Tokens match
// case-insensitively and the matched token is returned in its canonical form.
func ParseAddress(id string, platforms []string) (platform string, raw string, ok bool) {
	token, rest, found := strings.Cut(strings.TrimSpace(id), AddressSeparator)
	if !found || rest == "" {
		return "", "", false
	}

	for _, candidate := range platforms {
		if strings.EqualFold(token, candidate) {
			return candidate, rest, true
		}
	}

	return "", "", false
}
