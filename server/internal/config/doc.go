// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `host:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort              port for ingestion, REST API, /metrics and WebSocket (default 8080)
//   - Auth.Mode             "apikey" or "none"
//   - Auth.KeyEnv           environment variable holding the expected API key
//   - Auth.Header           HTTP header name (default "X-API-Key")
//   - Storage.Path          SQLite database file (default instrumentkit.db)
//   - Storage.Retention     how long run reports are kept (default 30 days)
//   - Storage.EvictInterval how often expired reports are removed (default 1h)
//   - WS.Interval           summary broadcast period (default 5s)
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// reloads the file on change; only alert rules are applied live.
package config
