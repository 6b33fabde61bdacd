package schema

import "strings"

const (
	// KeyPrefix prefixes every current-schema key, primary and backup.
	KeyPrefix = "timeline::"

	// BackupPrefix prefixes single-generation backup keys.
	BackupPrefix = "timeline::backup::"

	// LegacyPrefix prefixes pre-versioning keys.
	LegacyPrefix = "timeline-"
)

// PrimaryKey returns the primary storage key for a scene.
func PrimaryKey(sceneID string) string {
	return KeyPrefix + sceneID
}

// BackupKey returns the backup storage key for a scene.
func BackupKey(sceneID string) string {
	return BackupPrefix + sceneID
}

// LegacyKey returns the legacy storage key for a scene.
func LegacyKey(sceneID string) string {
	return LegacyPrefix + sceneID
}

// KeyKind classifies a storage key.
type KeyKind int

const (
	KeyUnknown KeyKind = iota
	KeyPrimary
	KeyBackup
	KeyLegacy
)

// String returns a human-readable representation of the key kind.
func (k KeyKind) String() string {
	switch k {
	case KeyPrimary:
		return "primary"
	case KeyBackup:
		return "backup"
	case KeyLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ParseKey splits a storage key into its kind and scene id.
func ParseKey(key string) (KeyKind, string) {
	switch {
	case strings.HasPrefix(key, BackupPrefix):
		return KeyBackup, strings.TrimPrefix(key, BackupPrefix)
	case strings.HasPrefix(key, KeyPrefix):
		return KeyPrimary, strings.TrimPrefix(key, KeyPrefix)
	case strings.HasPrefix(key, LegacyPrefix):
		return KeyLegacy, strings.TrimPrefix(key, LegacyPrefix)
	default:
		return KeyUnknown, ""
	}
}
