package apphelper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/instrumentkit/instrumentkit/host/internal/uiauto"
)

// AppHelper drives one app.
type AppHelper interface {
	Package() string
	LauncherName() string
	Open(ctx context.Context) error
	Exit(ctx context.Context) error
	DismissInitialDialogs(ctx context.Context) error
}

// Apps is the package management surface helpers need. *adb.Device
// satisfies it.
type Apps interface {
	PackageVersion(ctx context.Context, pkg string) (string, error)
	Launch(ctx context.Context, pkg string) error
}

// standard implements the launch and exit behaviour shared by helpers.
type standard struct {
	dev           *uiauto.Device
	apps          Apps
	pkg           string
	launcherName  string
	launchTimeout time.Duration
	idleTimeout   time.Duration
	log           *slog.Logger
}

func (s *standard) Package() string      { return s.pkg }
func (s *standard) LauncherName() string { return s.launcherName }

// Version returns the installed versionName.
func (s *standard) Version(ctx context.Context) (string, error) {
	return s.apps.PackageVersion(ctx, s.pkg)
}

// Open launches the app and waits for one of its windows.
func (s *standard) Open(ctx context.Context) error {
	if err := s.apps.Launch(ctx, s.pkg); err != nil {
		return err
	}
	ok, err := s.dev.WaitForExists(ctx, s.launchTimeout, uiauto.Package(s.pkg))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s did not show a window within %v", s.launcherName, s.launchTimeout)
	}
	return s.dev.WaitForIdle(ctx, s.idleTimeout)
}

// Exit returns to the home screen.
func (s *standard) Exit(ctx context.Context) error {
	if err := s.dev.PressHome(ctx); err != nil {
		return err
	}
	return s.dev.WaitForIdle(ctx, s.idleTimeout)
}
