// Package uiauto drives Android UI from the host by reading the window
// hierarchy that `uiautomator dump` produces and injecting input through adb.
//
// The shape follows UI Automator: a Device locates views with selectors built
// from options (Text, Res, DescContains, ...), an Object is a matched view that
// can be clicked, typed into or scrolled, and the Wait* methods poll the
// hierarchy until a condition holds or a fixed timeout elapses.
//
//	obj, err := d.WaitForObject(ctx, 10*time.Second, uiauto.TextMatches(regexp.MustCompile("(?i)got it")))
//	if err != nil {
//		return err
//	}
//	if obj == nil {
//		// not shown within 10s
//	}
//
// Objects are snapshots of the node that matched; Refresh re-resolves the
// selector against the current screen.
package uiauto
