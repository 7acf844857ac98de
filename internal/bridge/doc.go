// Package bridge provides a transport that reaches stations through a
// remote stationcfg bridge.
//
// A Client holds one WebSocket connection and multiplexes requests over it,
// matching responses by ID. It implements transport.Transport,
// transport.Scanner and transport.AttributeLister, so a configuration
// session runs over a bridge exactly as it does over a local link:
//
//	b, err := discovery.NewScanner().FindBridge(ctx, "")
//	if err != nil {
//	    return err
//	}
//	client, err := bridge.Dial(ctx, b.URL())
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	mgr := deviceconfig.NewManager(client)
//
// Requests without a context deadline are bounded by DefaultTimeout (see
// WithTimeout). The remaining time is forwarded to the bridge so it stops
// working on requests the client has given up on. Failed responses unwrap
// to the transport sentinels; a dropped connection fails every pending and
// later request with ErrClosed, which also matches transport.ErrNotConnected.
package bridge
