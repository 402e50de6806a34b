package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/instrumentkit/instrumentkit/host/internal/logging"
	"github.com/instrumentkit/instrumentkit/host/internal/uiauto"
)

// LensPickerPackage is the Auto launcher.
const LensPickerPackage = "com.android.support.car.lenspicker"

// Facet bar coordinates. The bar has no resource ids, so facets are tapped
// by position.
const (
	facetBarY      = 560
	mapsFacetX     = 250
	dialFacetX     = 380
	homeFacetX     = 530
	mediaFacetX    = 680
	settingsFacetX = 810
)

// AutoOptions tunes the Auto strategy. Zero fields take the defaults.
type AutoOptions struct {
	AppInitWait   time.Duration // app entry to appear and UI to settle, 10s
	FacetAttempts int           // facet taps before giving up on the app list, 5
}

func (o *AutoOptions) defaults() {
	if o.AppInitWait <= 0 {
		o.AppInitWait = 10 * time.Second
	}
	if o.FacetAttempts <= 0 {
		o.FacetAttempts = 5
	}
}

// Auto is the strategy for the Android Auto lens picker.
type Auto struct {
	dev  *uiauto.Device
	opts AutoOptions
	log  *slog.Logger
}

var _ AutoStrategy = (*Auto)(nil)

// NewAuto returns an Auto strategy driving dev.
func NewAuto(dev *uiauto.Device, opts *AutoOptions) *Auto {
	var o AutoOptions
	if opts != nil {
		o = *opts
	}
	o.defaults()
	return &Auto{dev: dev, opts: o, log: logging.New("launcher")}
}

func (a *Auto) SupportedLauncherPackage() string { return LensPickerPackage }

// Open is a no-op: the facet bar is always on screen.
func (a *Auto) Open(context.Context) error { return nil }

func (a *Auto) OpenDialFacet(ctx context.Context) error {
	return a.dev.Click(ctx, dialFacetX, facetBarY)
}

func (a *Auto) OpenMapsFacet(ctx context.Context, _ string) error {
	return a.dev.Click(ctx, mapsFacetX, facetBarY)
}

func (a *Auto) OpenHomeFacet(ctx context.Context) error {
	if err := a.dev.Click(ctx, homeFacetX, facetBarY); err != nil {
		return err
	}
	return a.dev.WaitForIdle(ctx, a.opts.AppInitWait)
}

func (a *Auto) OpenMediaFacet(ctx context.Context, appName string) error {
	return a.OpenApp(ctx, appName, mediaFacetX, facetBarY)
}

func (a *Auto) OpenSettingsFacet(ctx context.Context, appName string) error {
	return a.OpenApp(ctx, appName, settingsFacetX, facetBarY)
}

func lensPicker(id string) uiauto.SelectorOption { return uiauto.Res(LensPickerPackage, id) }

// OpenApp taps the facet at (x, y) until the lens picker app list shows,
// scrolls the list to appName if needed and clicks it.
func (a *Auto) OpenApp(ctx context.Context, appName string, x, y int) error {
	listed := false
	for i := 0; i < a.opts.FacetAttempts && !listed; i++ {
		if err := a.dev.Click(ctx, x, y); err != nil {
			return err
		}
		hasPageDown, err := a.dev.HasObject(ctx, lensPicker("page_down"))
		if err != nil {
			return err
		}
		hasList, err := a.dev.HasObject(ctx, lensPicker("list_view"))
		if err != nil {
			return err
		}
		listed = hasPageDown || hasList
	}
	if !listed {
		a.log.Warn("launcher: lens picker list did not open", "app", appName, "attempts", a.opts.FacetAttempts)
	}

	if err := a.scrollTo(ctx, appName); err != nil {
		return err
	}

	app, err := a.dev.WaitForObject(ctx, a.opts.AppInitWait, uiauto.Text(appName))
	if err != nil {
		return err
	}
	if app == nil {
		return fmt.Errorf("unable to find application %s", appName)
	}
	if err := app.Click(ctx); err != nil {
		return err
	}
	return a.dev.WaitForIdle(ctx, a.opts.AppInitWait)
}

// scrollTo pages down the lens picker until appName shows or the page-down
// control is disabled.
func (a *Auto) scrollTo(ctx context.Context, appName string) error {
	pageDown, err := a.dev.FindObject(ctx, lensPicker("page_down"))
	if errors.Is(err, uiauto.ErrNotFound) {
		// list_view only: everything fits on one page
		return nil
	}
	if err != nil {
		return err
	}
	for {
		visible, err := a.dev.HasObject(ctx, uiauto.Text(appName))
		if err != nil || visible || !pageDown.IsEnabled() {
			return err
		}
		changed, err := pageDown.Scroll(ctx, uiauto.Down, 1.0)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
}

func (a *Auto) OpenAllApps(context.Context, bool) (*uiauto.Object, error) {
	return nil, ErrUnsupported
}

func (a *Auto) AllAppsButtonSelector() (*uiauto.Selector, error) { return nil, ErrUnsupported }
func (a *Auto) AllAppsSelector() (*uiauto.Selector, error)       { return nil, ErrUnsupported }
func (a *Auto) AllAppsScrollDirection() (uiauto.Direction, error) {
	return 0, ErrUnsupported
}

func (a *Auto) OpenAllWidgets(context.Context, bool) (*uiauto.Object, error) {
	return nil, ErrUnsupported
}

func (a *Auto) AllWidgetsSelector() (*uiauto.Selector, error) { return nil, ErrUnsupported }
func (a *Auto) AllWidgetsScrollDirection() (uiauto.Direction, error) {
	return 0, ErrUnsupported
}

func (a *Auto) WorkspaceSelector() (*uiauto.Selector, error) { return nil, ErrUnsupported }
func (a *Auto) HotSeatSelector() (*uiauto.Selector, error)   { return nil, ErrUnsupported }
func (a *Auto) WorkspaceScrollDirection() (uiauto.Direction, error) {
	return 0, ErrUnsupported
}

// Launch does nothing on Auto and reports no launch time.
func (a *Auto) Launch(context.Context, string, string) (int64, error) { return 0, nil }
