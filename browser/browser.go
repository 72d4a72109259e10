// Package browser wraps the headless-browser engine behind a small Session
// interface so that the login and extraction flows can be exercised in tests
// without a real Chrome.
package browser

import "context"

// Session is one controllable, navigable browser context. A session is owned
// by exactly one caller at a time; its operations are serialized internally
// because the underlying engine is not reentrant per context.
type Session interface {
	// Navigate drives the context to url and waits for the load to settle.
	Navigate(ctx context.Context, url string) error
	// Location reports the current URL of the context.
	Location(ctx context.Context) (string, error)
	// WaitVisible blocks until the selector is rendered or ctx expires.
	WaitVisible(ctx context.Context, sel string) error
	Click(ctx context.Context, sel string) error
	SendKeys(ctx context.Context, sel, value string) error
	// Text returns the inner text of the first node matching sel.
	Text(ctx context.Context, sel string) (string, error)
	// OuterHTML returns the rendered markup of the first node matching sel.
	OuterHTML(ctx context.Context, sel string) (string, error)
	// Escape sends a neutral dismiss keystroke to clear native dialogs.
	Escape(ctx context.Context) error
	// NewTab opens a fresh context in the same browser, sharing cookies.
	NewTab() (Session, error)
	// Close releases the context. Safe to call more than once.
	Close() error
}

// Launcher creates fresh browser sessions. The production implementation
// spawns headless Chrome; tests substitute fakes.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}
