// Command hourly keeps a set of hourly tasks done, backfilling missed hours.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
