package password

import (
	"strings"
	"testing"
)

func TestHashVerify_RoundTrip(t *testing.T) {
	phc, err := Hash(Default, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash err: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$") {
		t.Fatalf("unexpected PHC prefix: %q", phc)
	}
	if !Verify("correct horse battery staple", phc) {
		t.Fatalf("Verify rejected the original password")
	}
	if Verify("wrong password", phc) {
		t.Fatalf("Verify accepted a wrong password")
	}
}

func TestHash_SaltedPerCall(t *testing.T) {
	a, err := Hash(Default, "secret12")
	if err != nil {
		t.Fatalf("Hash err: %v", err)
	}
	b, err := Hash(Default, "secret12")
	if err != nil {
		t.Fatalf("Hash err: %v", err)
	}
	if a == b {
		t.Fatalf("two hashes of the same password are identical (missing salt)")
	}
}

func TestVerify_MalformedPHC(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536",
		"$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA", // variante no soportada
		"$argon2id$v=19$m=abc,t=3,p=1$c2FsdA$aGFzaA",
	}
	for _, phc := range cases {
		if Verify("whatever", phc) {
			t.Fatalf("Verify accepted malformed PHC %q", phc)
		}
	}
}
