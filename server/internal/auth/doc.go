// Package auth provides authentication middleware for the results server.
//
// APIKey(mode, header, key) wraps an http.Handler and validates the API key
// carried in the named header or as a bearer token. When mode != "apikey" or
// key == "", all requests pass through (local development with auth disabled).
package auth
