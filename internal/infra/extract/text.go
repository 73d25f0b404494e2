package extract

import (
	"context"
	"strings"
)

// PlainText accepts UTF-8 text, replacing invalid sequences.
type PlainText struct{}

func (PlainText) Extract(_ context.Context, data []byte) (string, error) {
	return normalize(string(data)), nil
}

func normalize(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}
