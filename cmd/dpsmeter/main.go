package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
	debug      bool
	jsonLogs   bool
	character  string
	mode       string
}

func main() {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:   "dpsmeter",
		Short: "Passive damage meter for recorded game traffic",
		Long: `dpsmeter decodes captured game traffic into combat events and
aggregates them into per-target damage statistics.

Capture files (pcap or pcapng) are replayed through per-flow stream
reassembly and the message decoder. Results can be printed as a table
or served to an overlay over HTTP and websocket.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default: next to the binary or in the user config dir)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.BoolVar(&flags.debug, "debug", false, "debug logging with payload hex dumps")
	pf.BoolVar(&flags.jsonLogs, "json-logs", false, "write logs as JSON lines")
	pf.StringVar(&flags.character, "character", "", "local character name")
	pf.StringVar(&flags.mode, "mode", "", "target selection mode (mostDamage, mostRecent, lastHitByMe, allTargets)")

	rootCmd.AddCommand(
		replayCmd(&flags),
		serveCmd(&flags),
		followCmd(&flags),
		decodeCmd(&flags),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
