package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// Every default lives here so flags, the config file and environment
// loading agree on them.

const (
	// DefaultURL is where the bridge server listens out of the box.
	DefaultURL = "ws://127.0.0.1:8787"

	// DefaultOpenTimeout bounds a websocket open attempt.
	DefaultOpenTimeout = 3 * time.Second

	// DefaultRequestTimeout bounds the wait for a single response.
	DefaultRequestTimeout = 5 * time.Second

	// DefaultPlayerPolicy requires a player for pairing and agent commands.
	DefaultPlayerPolicy = PolicyRequired

	// DefaultRetries is how many times pairing is retried after a
	// transport failure.  Zero disables retries.
	DefaultRetries = 0

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultSSHTimeout bounds the SSH gateway dial and handshake.
	DefaultSSHTimeout = 15 * time.Second

	// FileName is looked up in the working directory.
	FileName = "twbridge.kdl"

	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "TWBRIDGE_"
)

// Player policy names accepted in flags, env and the config file.
const (
	PolicyRequired = "required"
	PolicyOptional = "optional"
)

// Default returns a Config populated with the defaults above.
func Default() *Config {
	return &Config{
		URL:            DefaultURL,
		PlayerPolicy:   DefaultPlayerPolicy,
		OpenTimeout:    DefaultOpenTimeout,
		RequestTimeout: DefaultRequestTimeout,
		Retries:        DefaultRetries,
		SSHTimeout:     DefaultSSHTimeout,
	}
}
