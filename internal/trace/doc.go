// Package trace records attribute traffic between stationcfg and stations.
//
// A Tracer wraps any transport and emits one Event per scan, enumeration,
// attribute listing, read and write, including the raw payload, the
// namespace the locator maps to, the duration and any error. Events are
// appended to a file as a stream of CBOR items (FileRecorder) and read back
// with Reader, optionally narrowed by a Filter:
//
//	rec, err := trace.NewFileRecorder("station.trace")
//	if err != nil {
//	    return err
//	}
//	defer rec.Close()
//	link := trace.NewTracer(client, rec, trace.WithRedaction())
//	mgr := deviceconfig.NewManager(link)
//
// Trace files contain session keys unless WithRedaction is set; they are
// created with mode 0600.
package trace
