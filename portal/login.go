// Package portal drives the university's web single-sign-on and knows how to
// land on the campus-card portal once a session is authenticated. All page
// structure knowledge (URLs, selectors, error phrasing) lives here.
package portal

import (
	"context"
	"strings"
	"time"

	"github.com/lionlink/lionlink/apperr"
	"github.com/lionlink/lionlink/browser"
	"github.com/sirupsen/logrus"
)

// Identity-provider form selectors. The provider is a Microsoft-style
// two-step login; these have been stable for years but are still third-party
// markup, so every probe that uses them tolerates absence.
const (
	selEmailInput    = `input[name="loginfmt"]`
	selPasswordInput = `input[name="passwd"]`
	selSubmitButton  = `input[type="submit"]`
	selEmailError    = `#usernameError`
	selPasswordError = `#passwordError`
	selNumberDisplay = `#idRichContext_DisplaySign`
	selMfaContext    = `#idDiv_SAOTCAS_Description`
	selDeniedTitle   = `#idDiv_SAASTO_Title`
	selStaySignedIn  = `#idSIButton9`
)

// Config holds the navigation targets for the SSO flow.
type Config struct {
	// ProviderURL is the SSO entry point that eventually redirects to the
	// identity provider's email page.
	ProviderURL string
	// PortalURL is the authenticated campus-card portal.
	PortalURL string
	// PortalPattern is the URL substring that identifies any page inside
	// the portal. Matching it is the only reliable "we are in" signal.
	PortalPattern string
	// LedgerURL is the portal's transaction history page.
	LedgerURL string
	// NavTimeout bounds individual navigation and render waits.
	NavTimeout time.Duration
	// LandingTimeout bounds the whole post-MFA landing race.
	LandingTimeout time.Duration
}

func (c Config) navTimeout() time.Duration {
	if c.NavTimeout <= 0 {
		return 15 * time.Second
	}
	return c.NavTimeout
}

func (c Config) landingTimeout() time.Duration {
	if c.LandingTimeout <= 0 {
		return 60 * time.Second
	}
	return c.LandingTimeout
}

// OnPortal reports whether url is inside the authenticated portal.
func (c Config) OnPortal(url string) bool {
	return c.PortalPattern != "" && strings.Contains(url, c.PortalPattern)
}

// Outcome classifies a credential submission that did not error.
type Outcome int

const (
	// OutcomeAuthenticated means the session cookies are already valid for
	// the portal; no second factor was requested.
	OutcomeAuthenticated Outcome = iota
	// OutcomeMFARequired means a push notification is on its way to the
	// user's device and the browser is parked on the challenge page.
	OutcomeMFARequired
)

// Flow performs SSO operations against a browser session.
type Flow struct {
	Config Config
	Logger *logrus.Logger
}

// SubmitCredentials drives the provider's two-step form: email page, then
// password page. The password is passed through to the form and never stored
// or logged. It returns OutcomeAuthenticated or OutcomeMFARequired, or an
// error distinguishing a credential rejection from an unreachable provider.
func (f *Flow) SubmitCredentials(ctx context.Context, s browser.Session, email, password string) (Outcome, error) {
	nav, cancel := context.WithTimeout(ctx, f.Config.navTimeout())
	defer cancel()
	if err := s.Navigate(nav, f.Config.ProviderURL); err != nil {
		return 0, apperr.Wrap(err, apperr.ErrProviderUnreachable, "")
	}
	if err := s.WaitVisible(nav, selEmailInput); err != nil {
		return 0, apperr.Wrap(err, apperr.ErrProviderUnreachable, "sign-on form never rendered")
	}
	if err := s.SendKeys(nav, selEmailInput, email); err != nil {
		return 0, apperr.Wrap(err, apperr.ErrProviderUnreachable, "")
	}
	if err := s.Click(nav, selSubmitButton); err != nil {
		return 0, apperr.Wrap(err, apperr.ErrProviderUnreachable, "")
	}

	// the provider validates the email before showing the password page
	pw, pwCancel := context.WithTimeout(ctx, f.Config.navTimeout())
	defer pwCancel()
	if err := s.WaitVisible(pw, selPasswordInput); err != nil {
		if _, ok := f.visibleText(ctx, s, selEmailError); ok {
			return 0, apperr.ErrInvalidCredentials
		}
		return 0, apperr.Wrap(err, apperr.ErrProviderUnreachable, "password page never rendered")
	}
	if err := s.SendKeys(pw, selPasswordInput, password); err != nil {
		return 0, apperr.Wrap(err, apperr.ErrProviderUnreachable, "")
	}
	if err := s.Click(pw, selSubmitButton); err != nil {
		return 0, apperr.Wrap(err, apperr.ErrProviderUnreachable, "")
	}

	return f.classify(ctx, s)
}

// classify inspects the page after the password submit. Order matters: a
// rejection message is checked before anything else because the password
// page re-renders with the form still present.
func (f *Flow) classify(ctx context.Context, s browser.Session) (Outcome, error) {
	deadline := time.Now().Add(f.Config.navTimeout())
	for {
		if _, ok := f.visibleText(ctx, s, selPasswordError); ok {
			return 0, apperr.ErrInvalidCredentials
		}
		probe, cancel := context.WithTimeout(ctx, 2*time.Second)
		loc, err := s.Location(probe)
		cancel()
		if err == nil && f.Config.OnPortal(loc) {
			return OutcomeAuthenticated, nil
		}
		if _, ok := f.visibleText(ctx, s, selMfaContext); ok {
			return OutcomeMFARequired, nil
		}
		if _, ok := f.visibleText(ctx, s, selNumberDisplay); ok {
			return OutcomeMFARequired, nil
		}
		// provider accepted the password and is redirecting without a
		// challenge: off the login host means authenticated
		if err == nil && loc != "" && !strings.Contains(loc, hostOf(f.Config.ProviderURL)) {
			return OutcomeAuthenticated, nil
		}
		if time.Now().After(deadline) {
			return 0, apperr.Wrap(context.DeadlineExceeded, apperr.ErrProviderUnreachable, "sign-on outcome could not be classified")
		}
		select {
		case <-ctx.Done():
			return 0, apperr.Wrap(ctx.Err(), apperr.ErrProviderUnreachable, "")
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// visibleText is a short, non-fatal probe for a selector's text content.
func (f *Flow) visibleText(ctx context.Context, s browser.Session, sel string) (string, bool) {
	probe, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	txt, err := s.Text(probe, sel)
	if err != nil || strings.TrimSpace(txt) == "" {
		return "", false
	}
	return strings.TrimSpace(txt), true
}

func hostOf(url string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}
