// Package filewatch reports changes to a single file, including saves that
// replace the file by renaming a temporary copy over it.
//
// The parent directory is watched rather than the file, so the watch
// survives the inode changing underneath it.
package filewatch
