// Package filter implements the content-policy gate posts must pass before
// they enter moderation. It is a policy check against exact banned tokens,
// not a security control: obfuscated spellings pass through on purpose.
package filter

import (
	"errors"
	"strings"
)

var ErrContentRejected = errors.New("post contains banned words and cannot be submitted")

const trimCutset = ".,!?\"'«»\n\r\t "

// DefaultBannedWords is the stock banned list; deployments override it via
// the [filter] config section.
func DefaultBannedWords() []string {
	return []string{
		"хуй", "пизда", "вагина", "порно", "цп", "дп",
		"дрочить", "лизать", "секс", "долбаеб", "хуйня",
	}
}

type Filter struct {
	banned map[string]bool
}

func New(words []string) *Filter {
	banned := make(map[string]bool, len(words))
	for _, word := range words {
		banned[strings.ToLower(word)] = true
	}
	return &Filter{banned: banned}
}

// IsAllowed tokenizes by whitespace, strips surrounding punctuation,
// lowercases, and requires that no token matches the banned set exactly.
func (f *Filter) IsAllowed(text string) bool {
	for _, token := range strings.Fields(text) {
		word := strings.ToLower(strings.Trim(token, trimCutset))
		if f.banned[word] {
			return false
		}
	}
	return true
}

// Check returns ErrContentRejected when the text is not allowed.
func (f *Filter) Check(text string) error {
	if !f.IsAllowed(text) {
		return ErrContentRejected
	}
	return nil
}
