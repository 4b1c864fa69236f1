// migrate runs DB migrations from embedded SQL; use with go run ./cmd/migrate [--direction up|down] [--version].
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"kiosk-engine/internal/config"
	"kiosk-engine/internal/db/migrate"
)

func main() {
	direction := pflag.StringP("direction", "d", "up", "Migration direction: up or down")
	showVersion := pflag.Bool("version", false, "Print the applied schema version and exit")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env or set DATABASE_URL")
		os.Exit(1)
	}

	if *showVersion {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		fmt.Printf("version %d (dirty=%t)\n", v, dirty)
		return
	}

	// Run treats "already at target version" as success.
	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
