// Package cmd provides the command-line interface for glance.
//
// # Available Commands
//
//   - glance [file]: serve a live preview of file (same as serve)
//   - serve: start the preview server
//   - render: render a document once, or on every change with --watch
//   - config show: print the resolved configuration as YAML
//   - config validate: report configuration errors and warnings
//   - version: print build information
//
// # Command Examples
//
//	// Preview README.md on the default address
//	glance README.md
//
//	// Bind to every interface and use the polling backend
//	glance serve notes.md --address 0.0.0.0:8080 --backend poll
//
//	// Render to the terminal and keep re-rendering on change
//	glance render README.md --format ansi --watch
//
// # Configuration
//
// Settings are read from .glance.yml, GLANCE_ prefixed environment
// variables (a .env file in the working directory is loaded first) and
// flags, with flags taking precedence.
package cmd
