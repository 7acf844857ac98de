// Package simulator provides in-memory sensor stations that speak the
// section protocol. A Fleet implements transport.Transport,
// transport.Scanner and transport.AttributeLister, so it can stand in for
// the BLE bridge in tests and in `stationcfg simulate`.
//
// Stations behave like the firmware where it matters to clients:
//
//   - devAddr is reported as a JSON number, not text
//   - keys are reported in the comma-grouped form they were written in
//   - the sensors section refreshes its timestamp on every read
//   - writes must carry exactly the addressed namespace
//
// Faults can be injected per station to exercise error paths.
package simulator
