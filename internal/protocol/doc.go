// Package protocol implements the stationcfg bridge protocol.
//
// A bridge is a gateway process that owns the radio and relays attribute
// operations for remote clients. Clients and bridges exchange JSON text
// frames over a WebSocket connection; each request carries an ID and the
// bridge answers every request with exactly one response bearing the same ID.
// Responses may arrive out of order.
//
// # Requests
//
//	{"id":7,"op":"read","device":"C0:FF:EE:00:00:01","locator":"180A/2A37"}
//	{"id":8,"op":"write","device":"C0:FF:EE:00:00:01","locator":"180A/2A41","payload":"eyJsb3Jh..."}
//
// Supported ops:
//   - scan: list nearby stations (timeoutMs bounds the scan)
//   - enumerate: capability discovery on one station
//   - attributes: locators found during enumeration
//   - read: current attribute value
//   - write: write-with-response
//
// Attribute payloads are opaque bytes and travel base64-encoded inside the
// JSON frame, so a section payload is base64 twice on the bridge link.
//
// # Responses
//
//	{"id":7,"ok":true,"payload":"eyJzeXN0ZW0i..."}
//	{"id":8,"ok":false,"code":"not_connected","error":"C0:FF:EE:00:00:01: device not connected"}
//
// Error codes map back onto the transport sentinels, so errors.Is works on
// the client side the same way it does against a local transport.
//
// # Thread Safety
//
// Parsing and construction are stateless. Request ID generation uses an
// atomic counter. A Handler is safe for concurrent use when its backend is.
package protocol
