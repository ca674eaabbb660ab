package host

import "os"

// writeConfigFile persists content to path with permissions appropriate
// for a local config drop file. It is used only when a ConfigSpec names
// a File (spec §9 explicitly treats the file write as an optional sink
// behavior, not a mandated destination).
func writeConfigFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
