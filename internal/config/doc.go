// Package config provides user configuration management for stationcfg.
//
// This package manages a YAML configuration file that stores station
// nicknames, the last advertised names and application preferences such as
// the bridge URL, log level, trace file and numeric strictness. The
// configuration follows OS-specific conventions for storage location.
//
// # Configuration File Location
//
// STATIONCFG_CONFIG_DIR overrides the directory. Otherwise:
//   - Linux: $XDG_CONFIG_HOME/stationcfg/config.yaml or $HOME/.config/stationcfg/config.yaml
//   - macOS: $HOME/.config/stationcfg/config.yaml
//   - Windows: %LOCALAPPDATA%\stationcfg\config.yaml
//
// # Security
//
// IMPORTANT: This package NEVER stores section values or LoRaWAN session
// keys. Provisioning sheets are read from files the user supplies.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.SetDeviceNickname("C0:FF:EE:00:00:01", "Greenhouse")
//	id, _ := registry.ResolveDevice("greenhouse")
//
//	// Save changes atomically
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
