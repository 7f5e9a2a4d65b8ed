// Package types contains common value types shared by the sip, transaction and actor packages.
package types

import "github.com/ghettovoice/sipstack/internal/util"

// isToken reports whether s is a non-empty RFC 3261 token.
func isToken[T ~string](s T) bool {
	if len(s) == 0 {
		return false
	}
	for i := range len(s) {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '!', c == '%', c == '*', c == '_', c == '+', c == '`', c == '\'', c == '~':
		default:
			return false
		}
	}
	return true
}

func eqFoldAny[T ~string](s T, val any) bool {
	switch v := val.(type) {
	case T:
		return util.EqFold(s, v)
	case *T:
		return v != nil && util.EqFold(s, *v)
	default:
		return false
	}
}
