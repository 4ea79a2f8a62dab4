package natskv

import (
	"regexp"
	"testing"
)

var validKVKey = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

func TestKVKeyIsValidAndStable(t *testing.T) {
	a := kvKey("web:what is the carbon cost of training a model?")
	b := kvKey("web:what is the carbon cost of training a model?")
	if a != b {
		t.Fatal("key hashing must be deterministic")
	}
	if !validKVKey.MatchString(a) {
		t.Fatalf("key %q is not a valid KV key", a)
	}
	if a == kvKey("deep:what is the carbon cost of training a model?") {
		t.Fatal("modes must not collide")
	}
}
