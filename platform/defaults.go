package platform

const (
	ConfigPath        = "/etc/meshnode/boot.yaml"
	IdentityPath      = "/opt/identity"
	IdentityInterface = "wlp1s0"
	JournalPath       = "/var/lib/meshnode/boot.db"
	LegacyEntrypoint  = "/opt/mesh_legacy_start.sh"
)
