// Package pkg provides the core functionality of turning raw log lines into
// structured events and routing them to sinks.
// This package (and subpackages) is a dependency of the logship command.
//   - The stream package contains the lazy iterator every other package passes around.
//   - The event package contains the structured log event and its field helpers.
//   - The clause package parses the textual descriptions that filters and sinks are built from.
//   - The filter package builds lazy pipelines from those descriptions.
//   - The sink package holds the sink registry, the built in destinations, and the transport subpackages.
package pkg
