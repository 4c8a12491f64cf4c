// Package config loads the server configuration from defaults, an optional
// config.yaml, a .env file and REELCHAIN_ environment variables, and
// validates it before anything connects. The store instance list may also be
// given as the REELCHAIN_STORE_URLS shorthand.
package config
