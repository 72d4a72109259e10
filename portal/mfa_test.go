package portal

import (
	"context"
	"testing"

	"github.com/lionlink/lionlink/browser"
)

func TestExtractNumberMatchFromDisplay(t *testing.T) {
	flow := testFlow()
	fake := browser.NewFakeSession("https://login.example.edu/sso")
	fake.Set(selNumberDisplay, " 47 ")

	code, ok := flow.ExtractNumberMatch(context.Background(), fake)
	if !ok || code != "47" {
		t.Errorf("got %q ok=%v, want 47", code, ok)
	}
}

func TestExtractNumberMatchFromPhrase(t *testing.T) {
	flow := testFlow()
	fake := browser.NewFakeSession("https://login.example.edu/sso")
	fake.Set("body", "Approve sign in request\nEnter the number shown to sign in: 102")

	code, ok := flow.ExtractNumberMatch(context.Background(), fake)
	if !ok || code != "102" {
		t.Errorf("got %q ok=%v, want 102", code, ok)
	}
}

func TestExtractNumberMatchBareToken(t *testing.T) {
	flow := testFlow()
	fake := browser.NewFakeSession("https://login.example.edu/sso")
	fake.Set("body", "Approve the request in your app\n  63  \nDidn't get a notification?")

	code, ok := flow.ExtractNumberMatch(context.Background(), fake)
	if !ok || code != "63" {
		t.Errorf("got %q ok=%v, want 63", code, ok)
	}
}

func TestExtractNumberMatchAbsent(t *testing.T) {
	flow := testFlow()
	fake := browser.NewFakeSession("https://login.example.edu/sso")
	fake.Set("body", "Approve the sign in request on your device")

	if code, ok := flow.ExtractNumberMatch(context.Background(), fake); ok {
		t.Errorf("expected no code, got %q", code)
	}
}

func TestProbeChallengeWaiting(t *testing.T) {
	flow := testFlow()
	fake := browser.NewFakeSession("https://login.example.edu/sso")
	fake.Set(selMfaContext, "Open your Authenticator app")

	if got := flow.ProbeChallenge(context.Background(), fake); got != ChallengeWaiting {
		t.Errorf("got %v, want waiting", got)
	}
}

func TestProbeChallengeApprovedByRedirect(t *testing.T) {
	flow := testFlow()
	fake := browser.NewFakeSession("https://idcard.example.edu/cash")
	fake.Set(selMfaContext, "still cached markup")

	if got := flow.ProbeChallenge(context.Background(), fake); got != ChallengeApproved {
		t.Errorf("got %v, want approved", got)
	}
}

func TestProbeChallengeApprovedWhenPromptGone(t *testing.T) {
	flow := testFlow()
	// parked page left the challenge but is stalled before the portal,
	// e.g. on a "stay signed in?" interstitial
	fake := browser.NewFakeSession("https://login.example.edu/kmsi")

	if got := flow.ProbeChallenge(context.Background(), fake); got != ChallengeApproved {
		t.Errorf("got %v, want approved", got)
	}
}

func TestProbeChallengeDenied(t *testing.T) {
	flow := testFlow()
	fake := browser.NewFakeSession("https://login.example.edu/sso")
	fake.Set(selMfaContext, "Open your Authenticator app")
	fake.Set(selDeniedTitle, "Request denied")

	if got := flow.ProbeChallenge(context.Background(), fake); got != ChallengeDenied {
		t.Errorf("got %v, want denied", got)
	}
}
