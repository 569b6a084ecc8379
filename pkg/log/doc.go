/*
Package log provides structured logging for the fleet control plane using
zerolog: a single global logger, initialized once via Init, with
component-scoped child loggers (WithComponent, WithServerID, WithTaskID,
WithCronJobID) so call sites never repeat context fields.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	compose := log.WithComponent("compose")
	compose.Info().Str("server_id", id).Msg("instance created")

Never log RCON passwords, DNS provider credentials, or restic repository
passwords; pass them as typed fields only at Debug level if at all.
*/
package log
