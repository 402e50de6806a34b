// Package apphelper scripts common user journeys through specific Android
// apps on top of uiauto.
//
// Each helper implements AppHelper: it knows the app's package and launcher
// label, can open and leave the app and can clear the first-run dialogs that
// stand between a fresh install and the app's main screen. Helpers add
// app-specific journeys on top, such as Maps.DoSearch.
//
// All waits use fixed timeouts. A dialog that is optional on some builds is
// logged and skipped when it does not appear; a required element that never
// appears is an error.
package apphelper
