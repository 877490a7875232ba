/*
Package log provides structured logging built on zerolog.

Init configures the global logger once at startup: JSON output for
in-cluster deployments, a human-readable console writer otherwise.
Components take child loggers with their identifying fields attached:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("cleanup-worker")
	logger.Info().Str("volume_id", id).Msg("Deleted local volume directory")

The conventional fields are "component" for the emitting subsystem,
"node" for the node a message concerns, and "volume_id" wherever a message
is about one volume, so log aggregation can follow a single volume's
cleanup across every node that touched it.

Before Init the global logger is a zero-value zerolog.Logger, which
discards everything; packages under test log safely into the void.
*/
package log
