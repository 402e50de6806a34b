// Package adb wraps the Android Debug Bridge command-line tool for host-side
// device access.
//
// Device binds a serial number to an adb binary and exposes the handful of
// operations the helpers and collectors rely on: shell commands (buffered and
// streamed), file transfer, package installation and queries, and input
// injection (tap, swipe, key events, text).
//
// Command execution goes through the Runner interface so tests can substitute
// the scripted fake in package adbtest for a real device.
package adb
