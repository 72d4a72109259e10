package portal

import (
	"context"
	"time"

	"github.com/lionlink/lionlink/apperr"
	"github.com/lionlink/lionlink/browser"
)

// ResolveLanding gets an approved session onto the portal. The provider's
// redirect after MFA approval is not reliably observable: the original
// context may already be there, may be mid-navigation, or may be stalled on
// an interstitial. Two strategies race under a shared deadline:
//
//  1. continue-in-place: give the pending navigation a moment, dismiss the
//     "stay signed in?" prompt if it appears, then navigate the original
//     context straight at the portal.
//  2. fresh-tab: open a new tab (same browser, shared cookies) and navigate
//     it straight at the portal.
//
// A watchdog periodically sends Escape to the original context to clear any
// blocking native dialog. The winner is the first context whose URL matches
// the portal pattern; losing fresh tabs are closed. The original context is
// never closed here: it is owned by the auth session and closing it would
// tear down tabs spawned from it.
func (f *Flow) ResolveLanding(ctx context.Context, orig browser.Session) (browser.Session, error) {
	onPortal := func(ctx context.Context, s browser.Session) bool {
		if s == nil {
			return false
		}
		probe, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		loc, err := s.Location(probe)
		return err == nil && f.Config.OnPortal(loc)
	}
	cleanup := func(s browser.Session) {
		if s != nil && s != orig {
			_ = s.Close()
		}
	}
	watchdog := func(ctx context.Context) {
		probe, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		_ = orig.Escape(probe)
	}

	winner, err := Race(ctx, f.Config.landingTimeout(), onPortal, cleanup, watchdog, 5*time.Second,
		func(ctx context.Context) (browser.Session, error) {
			return f.continueInPlace(ctx, orig)
		},
		func(ctx context.Context) (browser.Session, error) {
			return f.freshTab(ctx, orig)
		},
	)
	if err == nil {
		return winner, nil
	}
	// the race can expire with the original context having arrived late
	if onPortal(ctx, orig) {
		return orig, nil
	}
	return nil, apperr.Wrap(err, apperr.ErrPortalUnreachable, "")
}

// continueInPlace rides the existing context: wait briefly for the pending
// redirect, clear the known interstitial, then go straight to the portal.
func (f *Flow) continueInPlace(ctx context.Context, s browser.Session) (browser.Session, error) {
	settle := time.Now().Add(10 * time.Second)
	for time.Now().Before(settle) {
		probe, cancel := context.WithTimeout(ctx, 2*time.Second)
		loc, err := s.Location(probe)
		cancel()
		if err == nil && f.Config.OnPortal(loc) {
			return s, nil
		}
		// "stay signed in?" blocks the redirect until answered
		if _, ok := f.visibleText(ctx, s, selStaySignedIn); ok {
			probe, cancel := context.WithTimeout(ctx, 3*time.Second)
			_ = s.Click(probe, selStaySignedIn)
			cancel()
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	nav, cancel := context.WithTimeout(ctx, f.Config.navTimeout())
	defer cancel()
	if err := s.Navigate(nav, f.Config.PortalURL); err != nil {
		return s, err
	}
	return s, nil
}

// freshTab relies on the authentication cookies being browser-wide: a brand
// new tab pointed at the portal skips whatever state the original context is
// stuck in.
func (f *Flow) freshTab(ctx context.Context, orig browser.Session) (browser.Session, error) {
	tab, err := orig.NewTab()
	if err != nil {
		return nil, err
	}
	nav, cancel := context.WithTimeout(ctx, f.Config.navTimeout())
	defer cancel()
	if err := tab.Navigate(nav, f.Config.PortalURL); err != nil {
		return tab, err
	}
	return tab, nil
}
