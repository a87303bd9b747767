package fetcher

import "os"

// writeTestFile writes a fixture payload to path for decoder tests.
func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
