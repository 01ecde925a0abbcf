// Package callback authenticates gateway callbacks and resolves their
// payloads into domain events.
package callback

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/punchamoorthee/callbackops/internal/domain"
)

const (
	HeaderDigest             = "Digest"
	HeaderContentDigest      = "Content-Digest"
	HeaderSignature          = "Signature"
	HeaderSignatureInput     = "Signature-Input"
	HeaderSignatureTimestamp = "Signature-Timestamp"

	DefaultReplayWindow = 300 * time.Second
)

// SignatureVerifier checks the asymmetric request signature against the
// gateway's published key.
type SignatureVerifier interface {
	Verify(h http.Header, body []byte) error
}

// Validator is stateless apart from its configuration and is safe for
// concurrent use.
type Validator struct {
	replayWindow     time.Duration
	requireSignature bool
	verifier         SignatureVerifier
	now              func() time.Time
}

type Option func(*Validator)

// WithSignatureVerifier enables full signature verification.
func WithSignatureVerifier(sv SignatureVerifier) Option {
	return func(v *Validator) { v.verifier = sv }
}

// WithRequiredSignature rejects every callback when no verifier is wired.
func WithRequiredSignature(required bool) Option {
	return func(v *Validator) { v.requireSignature = required }
}

// WithClock overrides the time source used for the replay window.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func NewValidator(replayWindow time.Duration, opts ...Option) *Validator {
	if replayWindow <= 0 {
		replayWindow = DefaultReplayWindow
	}
	v := &Validator{replayWindow: replayWindow, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns nil when the callback is authentic, otherwise an error
// wrapping domain.ErrAuthentication.
func (v *Validator) Validate(h http.Header, body []byte) error {
	if err := v.checkDigest(h, body); err != nil {
		return err
	}
	if err := v.checkTimestamp(h.Get(HeaderSignatureTimestamp)); err != nil {
		return err
	}

	if v.verifier != nil {
		if err := v.verifier.Verify(h, body); err != nil {
			return fmt.Errorf("%w: signature: %v", domain.ErrAuthentication, err)
		}
		return nil
	}
	if v.requireSignature {
		return fmt.Errorf("%w: signature verification required but no verifier configured", domain.ErrAuthentication)
	}
	return nil
}

func (v *Validator) checkDigest(h http.Header, body []byte) error {
	header := strings.TrimSpace(h.Get(HeaderDigest))
	if header == "" {
		header = strings.TrimSpace(h.Get(HeaderContentDigest))
	}
	if header == "" {
		return fmt.Errorf("%w: missing digest header", domain.ErrAuthentication)
	}

	// Several algorithms may be listed; the first supported one decides.
	for _, part := range strings.Split(header, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}

		var actual []byte
		switch strings.ToLower(strings.TrimSpace(algo)) {
		case "sha-256":
			sum := sha256.Sum256(body)
			actual = sum[:]
		case "sha-512":
			sum := sha512.Sum512(body)
			actual = sum[:]
		default:
			continue
		}

		expected, err := base64.StdEncoding.DecodeString(strings.Trim(strings.TrimSpace(value), ":"))
		if err != nil {
			return fmt.Errorf("%w: digest is not valid base64", domain.ErrAuthentication)
		}
		if subtle.ConstantTimeCompare(actual, expected) != 1 {
			return fmt.Errorf("%w: digest mismatch", domain.ErrAuthentication)
		}
		return nil
	}
	return fmt.Errorf("%w: unsupported digest algorithm", domain.ErrAuthentication)
}

func (v *Validator) checkTimestamp(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed signature timestamp", domain.ErrAuthentication)
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > v.replayWindow {
		return fmt.Errorf("%w: signature timestamp outside %s window", domain.ErrAuthentication, v.replayWindow)
	}
	return nil
}

// Digest renders a Digest header value for body. Used by tooling that
// replays callbacks against this service.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha-256=" + base64.StdEncoding.EncodeToString(sum[:])
}
