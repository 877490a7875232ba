/*
Package config holds process configuration and its layering rules.

Values are resolved from three sources, later ones winning:

 1. defaults (Default)
 2. an optional yaml config file (Load)
 3. command-line flags, applied by the caller for flags explicitly set

Environment fallbacks (NODE_NAME, POD_NAMESPACE, CSI_ENDPOINT) fill values
still empty after flags; they exist because the in-cluster deployment
injects node identity via the downward API rather than arguments.

Validate checks only what both run modes share. Mode-specific requirements
(a node name in node mode) are enforced by the subcommands.
*/
package config
