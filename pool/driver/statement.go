package driver

import (
	"net/url"

	"github.com/pkg/errors"
)

var ErrUnsupportedPayload = errors.New("unsupported payload")

// ToStatement accepts a Statement, a pointer to it or bare query text.
func ToStatement(payload interface{}) (*Statement, error) {
	switch p := payload.(type) {
	case *Statement:
		if p == nil {
			return nil, errors.Wrap(ErrUnsupportedPayload, "nil statement")
		}
		return p, nil
	case Statement:
		return &p, nil
	case string:
		return &Statement{Query: p}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedPayload, "%T", payload)
	}
}

// NormalizeValue turns raw driver values into something that survives JSON
// encoding as text.
func NormalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// RedactDSN hides the password of a URL-style DSN for logging. DSNs that
// don't parse as URLs are hidden entirely.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "[redacted]"
	}
	return u.Redacted()
}
