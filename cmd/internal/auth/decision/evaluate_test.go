package decision

import (
	"errors"
	"testing"
	"time"

	"flussauth/cmd/identity"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	base := identity.Token{
		ID:          "tok-1",
		UserID:      "u1",
		Status:      identity.StatusActive,
		MaxSessions: 1,
		ValidFrom:   past,
	}
	req := Request{StreamName: "s1", ClientIP: "1.2.3.4", Token: "abc", Protocol: "hls"}

	with := func(mut func(*identity.Token)) identity.Token {
		tok := base.Clone()
		mut(&tok)
		return tok
	}

	cases := []struct {
		name           string
		tok            identity.Token
		wantEligible   bool
		wantReason     Reason
		wantTransition bool
	}{
		{name: "eligible", tok: base, wantEligible: true},
		{name: "suspended", tok: with(func(t *identity.Token) { t.Status = identity.StatusSuspended }), wantReason: ReasonTokenSuspended},
		{name: "expired status", tok: with(func(t *identity.Token) { t.Status = identity.StatusExpired }), wantReason: ReasonTokenExpired},
		{name: "not yet valid", tok: with(func(t *identity.Token) { t.ValidFrom = future }), wantReason: ReasonTokenNotYetValid},
		{name: "valid_until passed", tok: with(func(t *identity.Token) { t.ValidUntil = &past }), wantReason: ReasonTokenExpired, wantTransition: true},
		{name: "valid_until exactly now", tok: with(func(t *identity.Token) { t.ValidUntil = &now }), wantEligible: true},
		{name: "valid_from exactly now", tok: with(func(t *identity.Token) { t.ValidFrom = now }), wantEligible: true},
		{name: "ip not allowed", tok: with(func(t *identity.Token) { t.AllowedIPs = []string{"9.9.9.9"} }), wantReason: ReasonIPNotAllowed},
		{name: "stream not allowed", tok: with(func(t *identity.Token) { t.AllowedStreams = []string{"s2"} }), wantReason: ReasonStreamNotAllowed},
		{
			name: "ip checked before stream",
			tok: with(func(t *identity.Token) {
				t.AllowedIPs = []string{"9.9.9.9"}
				t.AllowedStreams = []string{"s2"}
			}),
			wantReason: ReasonIPNotAllowed,
		},
		{
			name: "suspended wins over window",
			tok: with(func(t *identity.Token) {
				t.Status = identity.StatusSuspended
				t.ValidUntil = &past
			}),
			wantReason: ReasonTokenSuspended,
		},
		{
			name: "allow-lists match",
			tok: with(func(t *identity.Token) {
				t.AllowedIPs = []string{"::ffff:1.2.3.4"}
				t.AllowedStreams = []string{"s1"}
			}),
			wantEligible: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			v := Evaluate(tc.tok, req, now)
			if v.Eligible != tc.wantEligible || v.Reason != tc.wantReason {
				t.Fatalf("Evaluate=%+v want eligible=%v reason=%q", v, tc.wantEligible, tc.wantReason)
			}
			if (v.Transition != nil) != tc.wantTransition {
				t.Fatalf("transition=%+v want present=%v", v.Transition, tc.wantTransition)
			}
			if v.Transition != nil {
				if v.Transition.From != identity.StatusActive || v.Transition.To != identity.StatusExpired || v.Transition.TokenID != "tok-1" {
					t.Fatalf("unexpected transition %+v", *v.Transition)
				}
			}
		})
	}
}

func TestRequest_Normalize(t *testing.T) {
	t.Parallel()

	got, err := Request{StreamName: " s1 ", ClientIP: "1.2.3.4", Token: "abc"}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.StreamName != "s1" || got.Protocol != "unknown" {
		t.Fatalf("unexpected normalized request %+v", got)
	}

	for field, req := range map[string]Request{
		"name":  {ClientIP: "1.2.3.4", Token: "abc"},
		"ip":    {StreamName: "s1", ClientIP: "  ", Token: "abc"},
		"token": {StreamName: "s1", ClientIP: "1.2.3.4"},
	} {
		_, err := req.Normalize()
		var re *RequestError
		if !errors.As(err, &re) || re.Field != field || !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("missing %s: got %v", field, err)
		}
	}
}

func TestDecision_Message(t *testing.T) {
	t.Parallel()

	req := Request{StreamName: "news", ClientIP: "5.6.7.8"}
	cases := map[Reason]string{
		ReasonTokenNotFound:      "Invalid or unknown token",
		ReasonTokenSuspended:     "Token has been suspended",
		ReasonTokenExpired:       "Token has expired",
		ReasonTokenNotYetValid:   "Token is not yet valid",
		ReasonMaxSessionsReached: "Maximum concurrent sessions limit reached (2)",
		ReasonIPNotAllowed:       "IP address 5.6.7.8 is not authorized for this token",
		ReasonStreamNotAllowed:   "Stream 'news' is not authorized for this token",
	}
	for reason, want := range cases {
		if got := (Decision{Reason: reason, MaxSessions: 2}).Message(req); got != want {
			t.Fatalf("%s: got %q want %q", reason, got, want)
		}
		if reason.Admits() {
			t.Fatalf("%s must not be an admission reason", reason)
		}
	}
	if !ReasonNewSession.Admits() || !ReasonSessionRecheck.Admits() {
		t.Fatalf("admission reasons must admit")
	}
}

func TestMaskToken(t *testing.T) {
	t.Parallel()

	if got := MaskToken("abc"); got != "***" {
		t.Fatalf("short token leaked: %q", got)
	}
	if got := MaskToken("abcdefghijkl"); got != "abcdef..." {
		t.Fatalf("MaskToken=%q", got)
	}
}
