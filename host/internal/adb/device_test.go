package adb_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/instrumentkit/instrumentkit/host/internal/adb"
	"github.com/instrumentkit/instrumentkit/host/internal/adb/adbtest"
)

func TestIsPackageInstalled_ExactMatch(t *testing.T) {
	r := adbtest.New()
	r.SetInstalled("com.google.android.apps.maps.beta")
	d := r.Device()

	ok, err := d.IsPackageInstalled(context.Background(), "com.google.android.apps.maps")
	if err != nil {
		t.Fatalf("IsPackageInstalled() error = %v", err)
	}
	if ok {
		t.Error("prefix of another package must not count as installed")
	}

	r.SetInstalled("com.google.android.apps.maps")
	ok, _ = d.IsPackageInstalled(context.Background(), "com.google.android.apps.maps")
	if !ok {
		t.Error("installed package reported missing")
	}
}

func TestInstall(t *testing.T) {
	r := adbtest.New()
	r.Packages["CollectorDeviceLibTest.apk"] = "android.device.collectors"
	d := r.Device()
	ctx := context.Background()

	if err := d.Install(ctx, "/tmp/out/CollectorDeviceLibTest.apk"); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	ok, _ := d.IsPackageInstalled(ctx, "android.device.collectors")
	if !ok {
		t.Error("package not installed after Install")
	}
	if err := d.Install(ctx, "/tmp/missing.apk"); err == nil {
		t.Error("Install of unknown apk should fail")
	}
}

func TestPackageVersion(t *testing.T) {
	r := adbtest.New()
	r.HandleShell("dumpsys package com.google.android.apps.maps", func([]string) (string, error) {
		return "Packages:\n  Package [com.google.android.apps.maps]\n    versionCode=1\n    versionName=9.30.1\n", nil
	})
	d := r.Device()

	v, err := d.PackageVersion(context.Background(), "com.google.android.apps.maps")
	if err != nil {
		t.Fatalf("PackageVersion() error = %v", err)
	}
	if v != "9.30.1" {
		t.Errorf("PackageVersion() = %q, want 9.30.1", v)
	}

	_, err = d.PackageVersion(context.Background(), "com.example.none")
	if !errors.Is(err, adb.ErrPackageNotFound) {
		t.Errorf("PackageVersion(missing) error = %v, want ErrPackageNotFound", err)
	}
}

func TestInputCommands(t *testing.T) {
	r := adbtest.New()
	d := r.Device()
	ctx := context.Background()

	_ = d.Tap(ctx, 380, 560)
	_ = d.KeyEvent(ctx, adb.KeycodeBack)
	_ = d.InputText(ctx, "coffee near me")
	_ = d.InputText(ctx, "")

	want := []string{
		"shell input tap 380 560",
		"shell input keyevent KEYCODE_BACK",
		"shell input text coffee%snear%sme",
	}
	if diff := cmp.Diff(want, r.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestPull(t *testing.T) {
	r := adbtest.New()
	r.PutFile("/sdcard/test_results/shot.png", []byte("png"))
	d := r.Device()
	local := filepath.Join(t.TempDir(), "shot.png")

	if err := d.Pull(context.Background(), "/sdcard/test_results/shot.png", local); err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	data, err := os.ReadFile(local)
	if err != nil || string(data) != "png" {
		t.Errorf("pulled content = %q, %v", data, err)
	}
	if err := d.Pull(context.Background(), "/sdcard/none", local); err == nil {
		t.Error("Pull of missing remote should fail")
	}
}

func TestHomePackage(t *testing.T) {
	r := adbtest.New()
	r.HandleShell("cmd package resolve-activity", func([]string) (string, error) {
		return "priority=0 preferredOrder=0\ncom.android.support.car.lenspicker/.LensPickerActivity\n", nil
	})
	pkg, err := r.Device().HomePackage(context.Background())
	if err != nil {
		t.Fatalf("HomePackage() error = %v", err)
	}
	if pkg != "com.android.support.car.lenspicker" {
		t.Errorf("HomePackage() = %q", pkg)
	}
}

func TestDevices(t *testing.T) {
	r := adbtest.New()
	got, err := adb.Devices(context.Background(), adb.WithRunner(r))
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	want := []adb.Info{{Serial: adbtest.Serial, State: "device"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Devices() mismatch (-want +got):\n%s", diff)
	}
}

// fakeADB writes an executable shell script standing in for the adb binary.
func fakeADB(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script adb needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScreencap_StdoutOnly(t *testing.T) {
	path := fakeADB(t, `printf '\211PNG\r\n\032\n'
echo "WARNING: linker: unused DT entry" >&2`)
	d := adb.New("emulator-5554", adb.WithADBPath(path))

	got, err := d.Screencap(context.Background())
	if err != nil {
		t.Fatalf("Screencap() error = %v", err)
	}
	if want := "\x89PNG\r\n\x1a\n"; string(got) != want {
		t.Errorf("Screencap() = %q, want %q", got, want)
	}
}

func TestShell_StderrInError(t *testing.T) {
	path := fakeADB(t, `echo partial
echo "error: device offline" >&2
exit 1`)
	d := adb.New("emulator-5554", adb.WithADBPath(path))

	out, err := d.Shell(context.Background(), "getprop", "ro.build.version.sdk")
	if err == nil {
		t.Fatal("Shell() expected error")
	}
	if !strings.Contains(err.Error(), "device offline") {
		t.Errorf("error %q does not carry stderr", err)
	}
	if out != "partial\n" {
		t.Errorf("Shell() output = %q, want stdout only", out)
	}
}
