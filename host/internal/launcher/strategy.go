package launcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/instrumentkit/instrumentkit/host/internal/uiauto"
)

// ErrUnsupported is returned for launcher features a strategy lacks.
var ErrUnsupported = errors.New("the feature not supported on Auto")

// ErrNoStrategy is returned by Detect when no strategy handles the device's
// launcher.
var ErrNoStrategy = errors.New("launcher: no strategy for home package")

// Strategy drives a home-screen launcher.
type Strategy interface {
	SupportedLauncherPackage() string
	Open(ctx context.Context) error
	OpenAllApps(ctx context.Context, reset bool) (*uiauto.Object, error)
	AllAppsButtonSelector() (*uiauto.Selector, error)
	AllAppsSelector() (*uiauto.Selector, error)
	AllAppsScrollDirection() (uiauto.Direction, error)
	OpenAllWidgets(ctx context.Context, reset bool) (*uiauto.Object, error)
	AllWidgetsSelector() (*uiauto.Selector, error)
	AllWidgetsScrollDirection() (uiauto.Direction, error)
	WorkspaceSelector() (*uiauto.Selector, error)
	HotSeatSelector() (*uiauto.Selector, error)
	WorkspaceScrollDirection() (uiauto.Direction, error)
	// Launch opens appName and returns the launch time in milliseconds since
	// the epoch, or 0 when the strategy does not measure it.
	Launch(ctx context.Context, appName, pkg string) (int64, error)
}

// AutoStrategy adds the facet bar of an automotive launcher.
type AutoStrategy interface {
	Strategy
	OpenDialFacet(ctx context.Context) error
	OpenMediaFacet(ctx context.Context, appName string) error
	OpenSettingsFacet(ctx context.Context, appName string) error
	OpenMapsFacet(ctx context.Context, appName string) error
	OpenHomeFacet(ctx context.Context) error
}

// HomeResolver reports the package handling the HOME intent. *adb.Device
// satisfies it.
type HomeResolver interface {
	HomePackage(ctx context.Context) (string, error)
}

// Detect returns the first candidate supporting the device's launcher.
func Detect(ctx context.Context, r HomeResolver, candidates ...Strategy) (Strategy, error) {
	pkg, err := r.HomePackage(ctx)
	if err != nil {
		return nil, fmt.Errorf("launcher: resolve home package: %w", err)
	}
	for _, s := range candidates {
		if s.SupportedLauncherPackage() == pkg {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrNoStrategy, pkg)
}
