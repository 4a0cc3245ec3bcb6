// Package openhab connects to an openHAB 2 server's event bus and fans
// its item events out to in-process subscribers.
//
// A Controller owns one server-sent-event stream per configured server.
// Each message is parsed into a DomainEvent and published on the
// controller's Router under the topic "<item>/<eventType>". Connection
// lifecycle changes are published on ConnectionTopic. Outbound writes go
// through Send (state update, command or read) and the full item list is
// cached by a Directory shared between controllers that point at the same
// server.
//
// # Execution model
//
// Every controller runs its callbacks on a single Executor: stream
// callbacks, HTTP completions and timers are posted there and run one at
// a time. Subscribers therefore see events in stream order and need no
// locking for state they only touch from handlers.
//
//	loop := openhab.NewLoop(logger)
//	loop.Start()
//	ctrl, err := openhab.NewController(openhab.Options{
//	    Config:    cfg,
//	    Executor:  loop,
//	    Requester: openhab.NewHTTPRequester(httpClient),
//	    Dialer:    openhab.NewSSEDialer(httpClient),
//	})
//	ctrl.Start()
//	defer ctrl.Stop()
package openhab
