/*
Package log provides structured logging for Hutch built on zerolog.

A single global logger is initialized once through Init and shared by every
package. Child loggers carry contextual fields (component, database,
collection, engine) so that log lines from the storage core, the document
and graph modalities, and the CLI can be filtered without parsing messages.

Output is either human-readable console format (development) or JSON
(production), selected via Config.JSONOutput. The level is a plain string
so it can come straight from a YAML config file or a CLI flag.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("kv")
	logger.Info().Uint64("sequence", seq).Msg("transaction committed")
*/
package log
