// Package config loads the `host:` section of the instrumentkit YAML file.
//
// Load(path) applies defaults before unmarshalling, then validates. Secrets
// are never stored in the file: API keys and tokens are read from the
// environment variables the file names.
//
// Watch(ctx, path, onChange) reloads the file on every save, including
// saves that rename a temporary file over it, and keeps the previous config
// when a reload fails.
package config
