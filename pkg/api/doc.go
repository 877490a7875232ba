/*
Package api implements the admin HTTP server.

The CSI socket is for the orchestrator; this server is for humans and
probes. It exposes health endpoints, Prometheus metrics, and read-only
visibility into the cleanup protocol:

	GET /health                   liveness, always 200 while the process runs
	GET /ready                    503 until the record store is reachable
	GET /metrics                  Prometheus exposition
	GET /v1/cleanups              all volumes in the cleanup phase, with
	                              per-node progress and pending nodes
	GET /v1/cleanups/{volumeID}   one volume's cleanup state
	GET /v1/events                recent audit events, newest last

Nothing here mutates anything. Cleanup state changes only through the CSI
services and the control loops, so the admin surface can be exposed to
operators without write-path concerns.
*/
package api
