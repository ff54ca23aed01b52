// Package internal contains the implementation packages for glance.
//
// # Package Organization
//
// The internal packages follow the path a change takes from disk to the
// browser:
//
//   - watcher: change sources over fsnotify or stat polling
//   - reader: whole-file reads with retry and encoding detection
//   - renderer: markdown to sanitized HTML or terminal output
//   - session: the watch, read, render loop for one viewer
//   - delivery: the bounded channel between a session and its viewer
//   - server: HTTP routes, Server-Sent Events and websocket streams
//   - websocket: the websocket relay for a delivery channel
//   - page: the templ page shell that subscribes to a stream
//
// Supporting packages are config, errors, logging, types, validation and
// version.
//
// # Sessions
//
// Every stream request owns exactly one session. A session ends when its
// viewer disconnects, when its change source fails, or when the server
// shuts down; the change source is closed on every exit path.
package internal
