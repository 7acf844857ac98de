// Package schema is the static registry of station configuration sections.
//
// Every Namespace is bound to exactly one attribute Locator on the
// configuration service (0x180A) and to an ordered, typed field Schema:
//
//	system    2A37  initialized, sleep_time, deviceId, stationId
//	ntc_100k  2A38  n100k_t1..n100k_r3 thermistor calibration points
//	ntc_10k   2A39  n10k_t1..n10k_r3 thermistor calibration points
//	cond      2A3C  conductivity calibration
//	ph        2A3B  pH calibration
//	sensors   2A40  sensor metadata (ts and v are read-only)
//	lorawan   2A41  ABP join parameters (devAddr and four session keys)
//
// 16-bit identifiers expand onto the Bluetooth base UUID:
//
//	schema.LocatorFor(schema.LoRaWAN).CharacteristicUUID()
//	// 00002a41-0000-1000-8000-00805f9b34fb
//
// The registry is immutable; SchemaFor returns copies.
package schema
