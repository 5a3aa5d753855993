// Package gateway provides the HTTP surface for the engine: inbound user
// messages, channel transcripts, and profile inspection.
package gateway

// Config is the gateway server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// HistoryDepth bounds how many messages are kept per channel.
	// Defaults to DefaultHistoryDepth.
	HistoryDepth int
}
