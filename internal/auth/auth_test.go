package auth

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestVerifyCredential(t *testing.T) {
	g := NewGuard("s3cret")
	cases := []struct {
		name   string
		header string
		want   bool
	}{
		{"exact", "Bearer s3cret", true},
		{"scheme case-insensitive", "bearer s3cret", true},
		{"wrong token", "Bearer s3cres", false},
		{"prefix only", "Bearer s3cre", false},
		{"longer", "Bearer s3cret!", false},
		{"missing scheme", "s3cret", false},
		{"wrong scheme", "Basic s3cret", false},
		{"empty", "", false},
		{"scheme without token", "Bearer ", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := g.VerifyCredential(tc.header)
			if err != nil {
				t.Fatalf("VerifyCredential: %v", err)
			}
			if got != tc.want {
				t.Fatalf("VerifyCredential(%q)=%v want %v", tc.header, got, tc.want)
			}
		})
	}
}

func TestVerifyCredentialFailsClosedWithoutSecret(t *testing.T) {
	g := NewGuard("")
	ok, err := g.VerifyCredential("Bearer anything")
	if ok || !errors.Is(err, ErrSecretNotConfigured) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	var nilGuard *Guard
	if _, err := nilGuard.VerifyCredential("Bearer x"); !errors.Is(err, ErrSecretNotConfigured) {
		t.Fatalf("nil guard err=%v", err)
	}
}

func TestVerifyCredentialSingleByteMutation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		secret := rapid.StringMatching(`[A-Za-z0-9]{8,48}`).Draw(t, "secret")
		g := NewGuard(secret)

		ok, err := g.VerifyCredential("Bearer " + secret)
		if err != nil || !ok {
			t.Fatalf("exact match rejected: ok=%v err=%v", ok, err)
		}

		pos := rapid.IntRange(0, len(secret)-1).Draw(t, "pos")
		repl := rapid.ByteRange('!', '~').Filter(func(b byte) bool { return b != secret[pos] }).Draw(t, "byte")
		mutated := []byte(secret)
		mutated[pos] = repl

		ok, err = g.VerifyCredential("Bearer " + string(mutated))
		if err != nil {
			t.Fatalf("VerifyCredential: %v", err)
		}
		if ok {
			t.Fatalf("mutated token accepted: %q", mutated)
		}
	})
}

func TestDeriveIdentityDeterministic(t *testing.T) {
	day := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	rapid.Check(t, func(t *rapid.T) {
		md := Metadata{
			UserAgent:    rapid.String().Draw(t, "ua"),
			ForwardedFor: rapid.String().Draw(t, "xff"),
			Day:          day,
		}
		a := DeriveIdentity(md)
		md.Day = day.Add(13 * time.Hour)
		b := DeriveIdentity(md)
		if a != b {
			t.Fatalf("same day differs: %q vs %q", a, b)
		}
		if !strings.HasPrefix(a, "user_") || len(a) != len("user_")+8 {
			t.Fatalf("identity shape: %q", a)
		}
		if err := ValidateIdentity(a); err != nil {
			t.Fatalf("derived identity invalid: %v", err)
		}
	})
}

func TestDeriveIdentityVariesByInput(t *testing.T) {
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	base := DeriveIdentity(Metadata{UserAgent: "curl/8", ForwardedFor: "1.2.3.4", Day: day})
	others := []Metadata{
		{UserAgent: "curl/7", ForwardedFor: "1.2.3.4", Day: day},
		{UserAgent: "curl/8", ForwardedFor: "1.2.3.5", Day: day},
		{UserAgent: "curl/8", ForwardedFor: "1.2.3.4", Day: day.AddDate(0, 0, 1)},
	}
	for _, md := range others {
		if DeriveIdentity(md) == base {
			t.Fatalf("collision for %+v", md)
		}
	}
}

func TestValidateIdentity(t *testing.T) {
	for _, ok := range []string{"alice", "user_1a2b3c4d", "A-b_9", strings.Repeat("x", 64)} {
		if err := ValidateIdentity(ok); err != nil {
			t.Fatalf("ValidateIdentity(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "../etc", "a/b", "a b", "ü", strings.Repeat("x", 65)} {
		if err := ValidateIdentity(bad); err == nil {
			t.Fatalf("ValidateIdentity(%q): expected error", bad)
		}
	}
}

func TestExtractOriginAddress(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first entry", map[string]string{HeaderForwardedFor: "9.9.9.9, 10.0.0.1", HeaderRealIP: "8.8.8.8"}, "1.1.1.1:1234", "9.9.9.9"},
		{"real ip", map[string]string{HeaderRealIP: "8.8.8.8", HeaderOriginalIP: "7.7.7.7"}, "1.1.1.1:1234", "8.8.8.8"},
		{"original ip", map[string]string{HeaderOriginalIP: "7.7.7.7"}, "1.1.1.1:1234", "7.7.7.7"},
		{"peer", nil, "1.1.1.1:1234", "1.1.1.1"},
		{"peer without port", nil, "1.1.1.1", "1.1.1.1"},
		{"empty forwarded falls through", map[string]string{HeaderForwardedFor: " , 3.3.3.3"}, "1.1.1.1:1", "1.1.1.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := ExtractOriginAddress(r); got != tc.want {
				t.Fatalf("got=%q want=%q", got, tc.want)
			}
		})
	}
	if got := ExtractOriginAddress(nil); got != "unknown" {
		t.Fatalf("nil request: %q", got)
	}
}
