// Package config handles loading and validating the bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Per-controller defaults (protocol, bus prefix, delays)
//   - Validation of required fields and cross references
//
// Security Considerations:
//   - Controller passwords, MQTT credentials, the InfluxDB token and the
//     API JWT secret should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, c := range cfg.Controllers {
//	    fmt.Println(c.Name, c.Host)
//	}
package config
