package dotenv

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads ENV_FILE (default .env) into the process environment.
// Variables already set win. A missing file is not an error.
func Load() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if path == "" {
		path = ".env"
	}
	return LoadFile(path)
}

func LoadFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
