package apphelper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/instrumentkit/instrumentkit/host/internal/logging"
	"github.com/instrumentkit/instrumentkit/host/internal/uiauto"
)

const (
	mapsPackage  = "com.google.android.apps.maps"
	legacyUIPkg  = "com.google.android.apps.maps"
	currentUIPkg = "com.google.android.apps.gmm"
	version930   = "9.30."
)

// ErrPoorWiFi is returned when the terms of service dialog could not be
// cleared, which in practice means Maps never got a connection.
var ErrPoorWiFi = errors.New("unable to dismiss Maps dialog due to poor WiFi")

var (
	termsPattern    = regexp.MustCompile(`(?i)ACCEPT & CONTINUE`)
	locationPattern = regexp.MustCompile(`(?i)YES, I'M IN`)
	gotItPattern    = regexp.MustCompile(`(?i)GOT IT`)
)

// MapsOptions holds the timeouts of the Maps journeys. Zero fields take the
// defaults.
type MapsOptions struct {
	TryAgainTimeout time.Duration // TRY AGAIN to disappear, 2.5s
	TermsTimeout    time.Duration // terms dialog to appear, 10s
	WiFiTimeout     time.Duration // network-bound results, 25s
	DialogTimeout   time.Duration // optional onboarding dialogs, 5s
	IdleTimeout     time.Duration // UI to settle, 10s
	LaunchTimeout   time.Duration // first window after launch, 10s
	TermsAttempts   int           // 3
}

func (o *MapsOptions) defaults() {
	if o.TryAgainTimeout <= 0 {
		o.TryAgainTimeout = 2500 * time.Millisecond
	}
	if o.TermsTimeout <= 0 {
		o.TermsTimeout = 10 * time.Second
	}
	if o.WiFiTimeout <= 0 {
		o.WiFiTimeout = 25 * time.Second
	}
	if o.DialogTimeout <= 0 {
		o.DialogTimeout = 5 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 10 * time.Second
	}
	if o.LaunchTimeout <= 0 {
		o.LaunchTimeout = 10 * time.Second
	}
	if o.TermsAttempts <= 0 {
		o.TermsAttempts = 3
	}
}

// Maps drives Google Maps.
type Maps struct {
	standard
	opts      MapsOptions
	uiPackage string
	is930     bool
}

// NewMaps returns a Maps helper. The installed version decides which package
// owns the UI resources: 9.30 builds use the app package, later builds the
// gmm package. A failed version lookup is logged and treated as a later
// build.
func NewMaps(ctx context.Context, dev *uiauto.Device, apps Apps, opts *MapsOptions) *Maps {
	var o MapsOptions
	if opts != nil {
		o = *opts
	}
	o.defaults()
	m := &Maps{
		standard: standard{
			dev:           dev,
			apps:          apps,
			pkg:           mapsPackage,
			launcherName:  "Maps",
			launchTimeout: o.LaunchTimeout,
			idleTimeout:   o.IdleTimeout,
			log:           logging.New("apphelper"),
		},
		opts:      o,
		uiPackage: currentUIPkg,
	}
	v, err := m.Version(ctx)
	if err != nil {
		m.log.Error("apphelper: unable to find package by name", "package", mapsPackage, "error", err)
		return m
	}
	if strings.HasPrefix(v, version930) {
		m.is930 = true
		m.uiPackage = legacyUIPkg
	}
	return m
}

// UIPackage returns the package that qualifies Maps resource ids.
func (m *Maps) UIPackage() string { return m.uiPackage }

func (m *Maps) res(id string) uiauto.SelectorOption { return uiauto.Res(m.uiPackage, id) }

// DismissInitialDialogs clears the onboarding flow: terms of service (retried
// when the network is poor), then the optional location, tap-here, reset-map
// and side-menu dialogs.
func (m *Maps) DismissInitialDialogs(ctx context.Context) error {
	if err := m.acceptTerms(ctx); err != nil {
		return err
	}
	if m.is930 {
		if err := m.Exit(ctx); err != nil {
			return err
		}
		if err := m.Open(ctx); err != nil {
			return err
		}
	}

	if err := m.clickOptional(ctx, "location services", true, uiauto.TextMatches(locationPattern)); err != nil {
		return err
	}
	if !m.is930 {
		if err := m.clickOptional(ctx, "tap here", true, m.res("tapherehint_textbox")); err != nil {
			return err
		}
		if err := m.clickOptional(ctx, "reset map", true, m.res("mylocation_button")); err != nil {
			return err
		}
	}
	return m.clickOptional(ctx, "side menu", false, uiauto.TextMatches(gotItPattern))
}

func (m *Maps) acceptTerms(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if attempt > m.opts.TermsAttempts {
			return ErrPoorWiFi
		}
		tryAgain, err := m.dev.FindObject(ctx, uiauto.Text("TRY AGAIN"))
		switch {
		case err == nil:
			if err := tryAgain.Click(ctx); err != nil {
				return err
			}
			if _, err := m.dev.WaitUntilGone(ctx, m.opts.TryAgainTimeout, uiauto.Text("TRY AGAIN")); err != nil {
				return err
			}
		case !errors.Is(err, uiauto.ErrNotFound):
			return err
		}

		terms, err := m.dev.WaitForObject(ctx, m.opts.TermsTimeout, uiauto.TextMatches(termsPattern))
		if err != nil {
			return err
		}
		if terms == nil {
			m.log.Error("apphelper: did not find a ToS dialog", "attempt", attempt)
			continue
		}
		if err := terms.Click(ctx); err != nil {
			return err
		}
		ok, err := m.dev.WaitForExists(ctx, m.opts.WiFiTimeout, m.res("search_omnibox_text_box"))
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

// clickOptional clicks a dialog control if it appears within the dialog
// timeout and logs its absence otherwise.
func (m *Maps) clickOptional(ctx context.Context, name string, idle bool, opts ...uiauto.SelectorOption) error {
	obj, err := m.dev.WaitForObject(ctx, m.opts.DialogTimeout, opts...)
	if err != nil {
		return err
	}
	if obj == nil {
		m.log.Error("apphelper: did not find dialog", "dialog", name)
		return nil
	}
	if err := obj.Click(ctx); err != nil {
		return err
	}
	if !idle {
		return nil
	}
	return m.dev.WaitForIdle(ctx, m.opts.IdleTimeout)
}

// DoSearch searches for query from the main screen and waits for the result
// card titled with it.
func (m *Maps) DoSearch(ctx context.Context, query string) error {
	if err := m.goToQueryScreen(ctx); err != nil {
		return err
	}

	bar, err := m.selectableSearchBar(ctx)
	if err != nil {
		return err
	}
	if bar == nil {
		return errors.New("no selectable search bar found")
	}
	if err := bar.Click(ctx); err != nil {
		return err
	}
	if err := m.dev.WaitForIdle(ctx, m.opts.IdleTimeout); err != nil {
		return err
	}

	edit, err := m.editableSearchBar(ctx)
	if err != nil {
		return err
	}
	if edit == nil {
		return errors.New("not editable search bar found")
	}
	if err := edit.SetText(ctx, query); err != nil {
		return err
	}

	if err := m.dev.PressEnter(ctx); err != nil {
		return err
	}
	ok, err := m.dev.WaitForExists(ctx, m.opts.WiFiTimeout, m.res("title_textbox"), uiauto.Text(query))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("did not detect a directions option after %d seconds", int(m.opts.WiFiTimeout/time.Second))
	}
	return nil
}

// goToQueryScreen presses back, at most twice, until a search bar shows.
func (m *Maps) goToQueryScreen(ctx context.Context) error {
	for backs := 2; backs > 0; backs-- {
		ok, err := m.hasSearchBar(ctx)
		if err != nil || ok {
			return err
		}
		if err := m.dev.PressBack(ctx); err != nil {
			return err
		}
		if err := m.dev.WaitForIdle(ctx, m.opts.IdleTimeout); err != nil {
			return err
		}
	}
	return nil
}

func (m *Maps) selectableSearchBar(ctx context.Context) (*uiauto.Object, error) {
	return m.findFirst(ctx,
		[]uiauto.SelectorOption{m.res("search_omnibox_text_box")},
		[]uiauto.SelectorOption{uiauto.DescContains("Search")})
}

func (m *Maps) editableSearchBar(ctx context.Context) (*uiauto.Object, error) {
	return m.findFirst(ctx,
		[]uiauto.SelectorOption{m.res("search_omnibox_edit_text")},
		[]uiauto.SelectorOption{uiauto.TextContains("Search")})
}

func (m *Maps) hasSearchBar(ctx context.Context) (bool, error) {
	obj, err := m.selectableSearchBar(ctx)
	if err != nil || obj != nil {
		return obj != nil, err
	}
	obj, err = m.editableSearchBar(ctx)
	return obj != nil, err
}

// findFirst returns the object matched by the first selector that matches
// anything, or nil.
func (m *Maps) findFirst(ctx context.Context, selectors ...[]uiauto.SelectorOption) (*uiauto.Object, error) {
	for _, sel := range selectors {
		obj, err := m.dev.FindObject(ctx, sel...)
		if err == nil {
			return obj, nil
		}
		if !errors.Is(err, uiauto.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}
