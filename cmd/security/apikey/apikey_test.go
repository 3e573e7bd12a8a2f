package apikey

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestVerifier_Open(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier("", "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if v.Enabled() {
		t.Fatalf("expected open verifier")
	}
	if !v.Verify("") || !v.Verify("anything") {
		t.Fatalf("open verifier must accept every key")
	}
}

func TestVerifier_Plain(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier("  s3cret  ", "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if !v.Enabled() {
		t.Fatalf("expected enabled verifier")
	}

	cases := []struct {
		in   string
		want bool
	}{
		{in: "s3cret", want: true},
		{in: "s3cre", want: false},
		{in: "", want: false},
		{in: "S3CRET", want: false},
	}
	for _, tc := range cases {
		if got := v.Verify(tc.in); got != tc.want {
			t.Fatalf("Verify(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestVerifier_Bcrypt(t *testing.T) {
	t.Parallel()

	h, err := bcrypt.GenerateFromPassword([]byte("ops-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	v, err := NewVerifier("ignored-when-hash-set", string(h))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if !v.Verify("ops-key") {
		t.Fatalf("expected match")
	}
	if v.Verify("ignored-when-hash-set") {
		t.Fatalf("plain key must be ignored when a hash is configured")
	}
	if v.Verify("") {
		t.Fatalf("empty key must not match")
	}
}

func TestVerifier_Argon2id(t *testing.T) {
	t.Parallel()

	h, err := HashArgon2id("ops-key", DefaultArgon2idParams())
	if err != nil {
		t.Fatalf("HashArgon2id: %v", err)
	}

	v, err := NewVerifier("", h)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if !v.Verify("ops-key") {
		t.Fatalf("expected match")
	}
	if v.Verify("wrong") {
		t.Fatalf("expected mismatch")
	}
}

func TestNewVerifier_InvalidHash(t *testing.T) {
	t.Parallel()

	cases := []string{
		"not-a-hash",
		"$argon2id$v=18$m=1,t=1,p=1$AAAA$AAAA",
		"$argon2id$v=19$m=x$AAAA$AAAA",
		"$2b$zz$short",
	}
	for _, in := range cases {
		if _, err := NewVerifier("", in); err != ErrInvalidHash {
			t.Fatalf("NewVerifier(%q): expected ErrInvalidHash, got %v", in, err)
		}
	}
}

func TestHashArgon2id_EmptyKey(t *testing.T) {
	t.Parallel()

	if _, err := HashArgon2id("  ", DefaultArgon2idParams()); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}
