package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// CredentialKind names a class of secret the package issues. Every kind has
// one entry in credentialPolicies so lifetimes and formats live in a single
// table instead of being scattered across handlers.
type CredentialKind string

const (
	CredentialVerification  CredentialKind = "verification"
	CredentialPasswordReset CredentialKind = "password_reset"
	CredentialReactivation  CredentialKind = "reactivation"
	CredentialAccess        CredentialKind = "access"
	CredentialRefresh       CredentialKind = "refresh"
)

// shortCodeAlphabet deliberately drops 0/O and 1/I so codes survive being
// read over the phone or retyped from a small screen.
const shortCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CredentialPolicy describes how a credential kind is generated and how
// long it lives. Zero-valued format fields mean the kind does not use that
// representation.
type CredentialPolicy struct {
	Lifetime  time.Duration
	HexBytes  int
	Digits    int
	ShortCode int
}

var credentialPolicies = map[CredentialKind]CredentialPolicy{
	CredentialVerification:  {Lifetime: 2 * time.Hour, Digits: 6},
	CredentialPasswordReset: {Lifetime: time.Hour, HexBytes: 20, ShortCode: 6},
	CredentialReactivation:  {Lifetime: 90 * 24 * time.Hour, HexBytes: 32},
	CredentialAccess:        {Lifetime: time.Hour},
	CredentialRefresh:       {Lifetime: 7 * 24 * time.Hour},
}

// PolicyFor returns the policy table entry for the given kind.
func PolicyFor(kind CredentialKind) CredentialPolicy {
	return credentialPolicies[kind]
}

// IssuedCredential is a freshly generated secret with its expiry computed
// from the policy table. Secret is the full value; ShortCode is the
// human-typable companion issued only for password resets.
type IssuedCredential struct {
	Kind      CredentialKind
	Secret    string
	ShortCode string
	ExpiresAt time.Time
}

// IssueCredential generates a secret for kind using its policy, anchored at
// now. JWT-backed kinds (access, refresh) are minted by the token issuer
// and have no random secret here.
func IssueCredential(kind CredentialKind, now time.Time) (IssuedCredential, error) {
	policy, ok := credentialPolicies[kind]
	if !ok {
		return IssuedCredential{}, goerrors.New("unknown credential kind", goerrors.CategoryInternal)
	}

	cred := IssuedCredential{
		Kind:      kind,
		ExpiresAt: now.Add(policy.Lifetime),
	}

	var err error
	switch {
	case policy.HexBytes > 0:
		cred.Secret, err = randomHex(policy.HexBytes)
	case policy.Digits > 0:
		cred.Secret, err = numericCode(policy.Digits)
	}
	if err != nil {
		return IssuedCredential{}, goerrors.Wrap(err, goerrors.CategoryInternal, "generating credential")
	}

	if policy.ShortCode > 0 {
		cred.ShortCode, err = randomCode(shortCodeAlphabet, policy.ShortCode)
		if err != nil {
			return IssuedCredential{}, goerrors.Wrap(err, goerrors.CategoryInternal, "generating short code")
		}
	}

	return cred, nil
}

// IsShortSecret reports whether a client-supplied reset secret should be
// matched against the short code column rather than the full token.
func IsShortSecret(secret string) bool {
	return len(secret) <= 8
}

// TruncateSecret renders a secret safe for logs: the first few characters
// followed by an ellipsis. Short codes are fully masked.
func TruncateSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:5] + "..."
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func numericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	s := n.String()
	for len(s) < digits {
		s = "0" + s
	}
	return s, nil
}

func randomCode(alphabet string, length int) (string, error) {
	out := make([]byte, length)
	size := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}
