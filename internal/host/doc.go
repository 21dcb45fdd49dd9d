// Package host emulates the services a game-server plugin framework hands
// to its plugins: a single-threaded event loop with one-shot and recurring
// timers, a permission system, a plugin registry, player handles and an
// asynchronous web request client.
//
// Everything that touches plugin state runs on the Loop goroutine. Other
// goroutines (transports, HTTP requests, cron, file watchers) hand work to
// the loop with Post and never call plugin code directly.
package host
