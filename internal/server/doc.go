// Package server is the control-plane core of the media server: device
// identity, service routing, serialized event dispatch and the device
// lifecycle.
//
// # Architecture
//
//	Transport ──HandleEvent──▶ Dispatcher ──▶ upnp.Translator
//	                               │
//	                               ▼
//	                           Registry ──▶ ContentDirectory | ConnectionManager
//
// The Server is created by the composition root and passed to whatever
// needs it; there is no package-level state.
//
// # Lifecycle
//
//	srv := server.New(opts)
//	if err := srv.Init(ctx); err != nil { ... }
//	if err := srv.Start(ctx, "192.168.1.10", 49152); err != nil { ... }
//	defer srv.Stop()
//
// Start reads the bound port back from the transport, so VirtualURL always
// carries the port actually in use. Stop is terminal; a stopped Server
// cannot be started again.
//
// # Thread Safety
//
// HandleEvent may be called from any number of goroutines. Processing is
// serialized: one event at a time, system-wide. The advertisement loop runs
// independently and never takes the dispatch lock.
//
// Known limitation: HandleEvent has no timeout. A service that blocks
// stalls every later event.
package server
