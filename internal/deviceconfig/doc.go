// Package deviceconfig reads and writes the configuration sections of a
// sensor station over a BLE transport.
//
// A Manager hands out at most one Session per device. Each Session reads
// and writes sections (system, thermistor tables, conductivity, pH,
// sensor metadata, LoRaWAN join parameters) through a Handle that runs the
// section pipeline:
//
//	Read:  Discovering -> Fetching -> Decoding -> Ready
//	Write: Canonicalizing -> Validating -> Encoding -> Discovering -> Sending -> Sent
//
// Capability enumeration happens once per connection and is shared by
// concurrent callers. Writes are validated before any I/O: a write with
// invalid fields reports every offending field and sends nothing.
//
// # Usage Example
//
//	mgr := deviceconfig.NewManager(link)
//	session, err := mgr.Open(dev)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	lora, err := session.Read(ctx, schema.LoRaWAN)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = session.Write(ctx, schema.LoRaWAN, map[string]string{
//	    "devAddr":     "00bfe104",
//	    "fNwkSIntKey": "2b7e151628aed2a6abf7158809cf4f3c",
//	    // ...
//	})
//	if deviceconfig.IsValidationError(err) {
//	    for key, reason := range deviceconfig.Violations(err) {
//	        fmt.Println(key, reason)
//	    }
//	}
//
// # Safe Writes
//
// WriteAndVerify writes once and re-reads the section until it matches.
// RollbackManager.SafeWrite additionally snapshots the section first and
// restores it if the read-back does not match.
//
// # Errors
//
// Every failure is a *DeviceError carrying the phase it happened in. Use
// IsTransportError, IsDecodeError, IsValidationError and friends to
// classify it, and errors.Is to reach transport or codec sentinels.
package deviceconfig
