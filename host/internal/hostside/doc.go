// Package hostside verifies the device-side metric listeners from the test
// host.
//
// Each scenario installs the collector test APK, runs its instrumentation
// with one listener selected through instrumentation arguments and checks
// the metrics that come back, pulling and validating any file the listener
// reports. It is the host half of the device collector library's tests and
// doubles as a smoke check for a device before a real suite runs on it.
package hostside
