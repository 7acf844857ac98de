// Package provision writes LoRaWAN ABP join parameters to many stations
// from a spreadsheet export.
//
// A sheet is CSV (or TSV, by file extension) with a header row:
//
//	device,dev_addr,fnwk_sint_key,snwk_sint_key,nwk_senc_key,app_skey
//	station-1,00bfe104,2B7E1516...,2B7E1516...,2B7E1516...,2B7E1516...
//
// The device column holds a device ID, a registry nickname or an advertised
// name. Keys may use any accepted input form (spaces, commas, lowercase);
// they are canonicalized on write. Lines starting with # are ignored.
//
// Every row is validated before anything is written, so a typo on line 40
// does not leave the first 39 stations provisioned and the rest untouched.
// Writes are verified by read-back and rolled back on a mismatch unless
// WithVerification(nil) is given.
package provision
