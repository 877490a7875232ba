/*
Package volume manages the node-local directories and mounts backing cache
volumes.

Each volume's data on a node is a single directory under the cache root:

	/var/lib/nlcache/volumes/<volume_id>

LocalDriver creates and removes those directories. Every path it produces
is verified to be a strict descendant of the root before any filesystem
operation, so a hostile or corrupted volume ID cannot steer a deletion
outside the cache root. The IDs themselves are minted by GenerateID as
"nlc-" plus a UUID derived deterministically from the volume name, which
both makes CreateVolume retries idempotent and gives ValidateID a strict
shape to check against.

Removal is idempotent: deleting a directory that is already gone is
success, because the cleanup protocol cannot tell "deleted by the previous
attempt" from "never existed" and must treat both as done.

Mount operations wrap the moby mount helpers: bind mounts into the
workload target path, a remount pass for read-only publishes (plain bind
mounts ignore ro), and lazy-detach unmounts so a busy target releases once
its last user exits.
*/
package volume
