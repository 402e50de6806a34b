// Package launcher abstracts the home-screen launcher of a device so app
// helpers can open apps without knowing which launcher is installed.
//
// A Strategy covers the operations every launcher offers (all-apps drawer,
// widgets, workspace, hotseat). AutoStrategy extends it with the facet bar of
// the Android Auto lens picker, which has no drawer or workspace: those
// operations return ErrUnsupported on Auto. Detect picks the strategy whose
// package owns the HOME intent.
package launcher
