package browser

import (
	"context"
	"errors"
	"sync"
)

// FakeSession is an in-memory Session used by tests and by local dry runs
// without a real Chrome. Selector lookups answer from the Texts and HTML
// maps; hooks let a test script page mutations in response to driving.
type FakeSession struct {
	mu *sync.Mutex

	URL   string
	Texts map[string]string
	HTML  map[string]string

	Navigated  []string
	Clicked    []string
	Keys       map[string]string
	EscapeHits int
	Closed     int

	NavErr     error
	OnNavigate func(f *FakeSession, url string)
	OnClick    func(f *FakeSession, sel string)
	NewTabFn   func() (Session, error)
}

func NewFakeSession(url string) *FakeSession {
	return &FakeSession{
		mu:    &sync.Mutex{},
		URL:   url,
		Texts: make(map[string]string),
		HTML:  make(map[string]string),
		Keys:  make(map[string]string),
	}
}

// Set updates a selector's text, making it visible.
func (f *FakeSession) Set(sel, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Texts[sel] = text
}

// Remove hides a selector.
func (f *FakeSession) Remove(sel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Texts, sel)
	delete(f.HTML, sel)
}

// SetURL moves the fake to a new location, as an external redirect would.
func (f *FakeSession) SetURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.URL = url
}

func (f *FakeSession) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	if f.NavErr != nil {
		err := f.NavErr
		f.mu.Unlock()
		return err
	}
	f.URL = url
	f.Navigated = append(f.Navigated, url)
	hook := f.OnNavigate
	f.mu.Unlock()
	if hook != nil {
		hook(f, url)
	}
	return nil
}

func (f *FakeSession) Location(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.URL, nil
}

func (f *FakeSession) WaitVisible(_ context.Context, sel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Texts[sel]; ok {
		return nil
	}
	if _, ok := f.HTML[sel]; ok {
		return nil
	}
	return errors.New("selector not visible: " + sel)
}

func (f *FakeSession) Click(_ context.Context, sel string) error {
	f.mu.Lock()
	if _, okT := f.Texts[sel]; !okT {
		if _, okH := f.HTML[sel]; !okH {
			f.mu.Unlock()
			return errors.New("selector not visible: " + sel)
		}
	}
	f.Clicked = append(f.Clicked, sel)
	hook := f.OnClick
	f.mu.Unlock()
	if hook != nil {
		hook(f, sel)
	}
	return nil
}

func (f *FakeSession) SendKeys(_ context.Context, sel, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Texts[sel]; !ok {
		return errors.New("selector not visible: " + sel)
	}
	f.Keys[sel] = value
	return nil
}

func (f *FakeSession) Text(_ context.Context, sel string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txt, ok := f.Texts[sel]
	if !ok {
		return "", errors.New("selector not found: " + sel)
	}
	return txt, nil
}

func (f *FakeSession) OuterHTML(_ context.Context, sel string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	html, ok := f.HTML[sel]
	if !ok {
		return "", errors.New("selector not found: " + sel)
	}
	return html, nil
}

func (f *FakeSession) Escape(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EscapeHits++
	return nil
}

// NewTab shares the fake's page maps, mirroring how real tabs share the
// browser's cookies.
func (f *FakeSession) NewTab() (Session, error) {
	if f.NewTabFn != nil {
		return f.NewTabFn()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &FakeSession{
		mu:    f.mu,
		URL:   f.URL,
		Texts: f.Texts,
		HTML:  f.HTML,
		Keys:  make(map[string]string),
	}, nil
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed++
	return nil
}

// FakeLauncher hands out a scripted queue of sessions.
type FakeLauncher struct {
	mu       sync.Mutex
	Sessions []Session
	Launches int
	Err      error
}

func (l *FakeLauncher) Launch(_ context.Context) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	l.Launches++
	if len(l.Sessions) == 0 {
		return NewFakeSession(""), nil
	}
	s := l.Sessions[0]
	if len(l.Sessions) > 1 {
		l.Sessions = l.Sessions[1:]
	}
	return s, nil
}
