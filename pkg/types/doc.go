// Package types defines the run report shared by the host tools and the
// results server. Reports travel as JSON over HTTP and are stored as JSON
// by the server, so field tags are part of the wire format.
package types
