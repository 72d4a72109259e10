package portal

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/lionlink/lionlink/browser"
)

// Number-matching phrasing used by the identity provider, then a generic
// fallback for a short token standing alone on its own line.
var (
	reProviderPhrase = regexp.MustCompile(`(?i)enter the number shown[^\d]*(\d{2,3})`)
	reBareToken      = regexp.MustCompile(`(?m)^\s*(\d{2})\s*$`)
)

// ExtractNumberMatch recovers the short code the provider displays during a
// push challenge. The same code appears in the user's authenticator app; the
// user approves only if they match. The code is advisory to the human, not a
// secret, so failing to find one is not an error: the caller falls back to a
// generic "approve on your device" instruction.
func (f *Flow) ExtractNumberMatch(ctx context.Context, s browser.Session) (string, bool) {
	// the dedicated display element, when present, contains only the digits
	if txt, ok := f.visibleText(ctx, s, selNumberDisplay); ok {
		digits := strings.TrimSpace(txt)
		if len(digits) >= 2 && len(digits) <= 3 && isDigits(digits) {
			return digits, true
		}
	}
	body, ok := f.visibleText(ctx, s, "body")
	if !ok {
		return "", false
	}
	if m := reProviderPhrase.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	if m := reBareToken.FindStringSubmatch(body); m != nil {
		return m[1], true
	}
	return "", false
}

// ChallengeStatus is the result of one non-blocking probe of a parked MFA
// challenge page.
type ChallengeStatus int

const (
	ChallengeWaiting ChallengeStatus = iota
	ChallengeApproved
	ChallengeDenied
)

// ProbeChallenge performs a single quick look at the browser to decide
// whether the push was approved, denied, or is still pending. It never
// blocks for the full approval window; the client owns the retry cadence.
func (f *Flow) ProbeChallenge(ctx context.Context, s browser.Session) ChallengeStatus {
	if txt, ok := f.visibleText(ctx, s, selDeniedTitle); ok {
		if strings.Contains(strings.ToLower(txt), "denied") {
			return ChallengeDenied
		}
	}
	probe, cancel := context.WithTimeout(ctx, 2*time.Second)
	loc, err := s.Location(probe)
	cancel()
	if err != nil {
		// transient driver hiccup; keep waiting rather than failing the poll
		return ChallengeWaiting
	}
	if f.Config.OnPortal(loc) {
		return ChallengeApproved
	}
	// the browser was parked on the challenge page, so the prompt being
	// gone means the provider accepted the approval and is mid-redirect
	// (possibly stalled on a "stay signed in?" interstitial)
	if _, ok := f.visibleText(ctx, s, selMfaContext); !ok {
		if _, ok := f.visibleText(ctx, s, selNumberDisplay); !ok {
			return ChallengeApproved
		}
	}
	return ChallengeWaiting
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
