// Package app contains the core application logic. It wires a loaded
// experiment to its platforms, snapshot store and event publishers, runs the
// scheduler, and serves the health and job query endpoints, decoupled from
// any specific entrypoint like a CLI.
package app
