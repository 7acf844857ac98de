// Package codec converts configuration documents to and from the octets
// exchanged with a station.
//
// The wire form is a UTF-8 JSON object with exactly one key, the namespace
// token, whose value is an object of field keys, wrapped in standard padded
// base64:
//
//	{"lorawan":{"devAddr":"0x00BFE104","appSKey":"2B,7E,..."}}
//
// Encoding is deterministic: fields appear in the order given. Decoding
// reports *DecodeError values that match ErrMalformed, ErrNotStructured or
// ErrSchemaMismatch through errors.Is.
package codec
