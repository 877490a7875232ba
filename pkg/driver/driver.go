package driver

// DriverName is the CSI plugin name advertised to the container orchestrator
const DriverName = "nlcache.csi.io"

// driverVersion is stamped into GetPluginInfo responses
var driverVersion = "dev"

// SetVersion overrides the advertised plugin version. Called once at startup
// with the build's version string.
func SetVersion(v string) {
	if v != "" {
		driverVersion = v
	}
}
