package main

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/gotd/td/tg"
)

func TestPromptAuth_TrimsInput(t *testing.T) {
	p := promptAuth{in: bufio.NewReader(strings.NewReader("  +15551234567  \n12345\nhunter2\n"))}

	phone, err := p.Phone(context.Background())
	if err != nil || phone != "+15551234567" {
		t.Fatalf("phone = %q, err = %v", phone, err)
	}
	code, err := p.Code(context.Background(), nil)
	if err != nil || code != "12345" {
		t.Fatalf("code = %q, err = %v", code, err)
	}
	pw, err := p.Password(context.Background())
	if err != nil || pw != "hunter2" {
		t.Fatalf("password = %q, err = %v", pw, err)
	}
}

func TestPromptAuth_RejectsSignUp(t *testing.T) {
	p := promptAuth{}
	if _, err := p.SignUp(context.Background()); err == nil {
		t.Fatal("sign-up should be rejected")
	}
	if err := p.AcceptTermsOfService(context.Background(), tg.HelpTermsOfService{}); err == nil {
		t.Fatal("terms acceptance should report sign-up required")
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		me   tg.User
		want string
	}{
		{tg.User{Username: "alice", FirstName: "Alice"}, "alice"},
		{tg.User{FirstName: "Alice"}, "Alice"},
		{tg.User{}, "unknown"},
	}
	for _, tc := range cases {
		if got := displayName(&tc.me); got != tc.want {
			t.Fatalf("displayName(%+v) = %q; want %q", tc.me, got, tc.want)
		}
	}
}
