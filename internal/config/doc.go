// Package config loads hashstate server configuration.
//
// The configuration lives in hashstate.json, hashstate.toml or
// hashstate.yaml; the extension picks the parser.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "0.0.0.0",
//	    "port": 8080,
//	    "prefix": "/_hashstate",
//	    "metrics": true
//	  },
//	  "bindings": [
//	    {"key": "q", "debounce": "300ms"},
//	    {"key": "filters", "codec": "json", "mirror": true, "default": "{}"}
//	  ],
//	  "mirror": {
//	    "backend": "memory",
//	    "idleTimeout": "30m"
//	  },
//	  "oauth": {
//	    "provider": "google",
//	    "clientId": "1234.apps.googleusercontent.com"
//	  },
//	  "log": {"level": "debug", "format": "json"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Address())
package config
