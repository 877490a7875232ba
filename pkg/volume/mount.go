package volume

import (
	"fmt"

	"github.com/moby/sys/mount"
	"github.com/moby/sys/mountinfo"
)

// Mounted reports whether target is currently a mount point
func Mounted(target string) (bool, error) {
	mounted, err := mountinfo.Mounted(target)
	if err != nil {
		return false, fmt.Errorf("failed to check mount point %s: %w", target, err)
	}
	return mounted, nil
}

// BindMount bind-mounts source onto target
func BindMount(source, target string) error {
	if err := mount.Mount(source, target, "none", "bind"); err != nil {
		return fmt.Errorf("failed to bind mount %s on %s: %w", source, target, err)
	}
	return nil
}

// RemountReadonly makes an existing bind mount read-only. Bind mounts ignore
// ro on the initial call; it takes effect only on a remount pass.
func RemountReadonly(target string) error {
	if err := mount.Mount("", target, "none", "remount,bind,ro"); err != nil {
		return fmt.Errorf("failed to remount %s read-only: %w", target, err)
	}
	return nil
}

// Unmount detaches target. The underlying call uses a lazy detach, so a
// busy mount is released once its last user exits.
func Unmount(target string) error {
	if err := mount.Unmount(target); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", target, err)
	}
	return nil
}
