package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address and port of the relay server
//	-n string   device name
//	-f string   cache database path
//	-m int      cache bound (max items)
//	-i int      heartbeat interval in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-n", "-f", "-m", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerAddr, "a", cfg.ServerAddr, "address and port to access relay")
	fs.StringVar(&cfg.DeviceName, "n", cfg.DeviceName, "device name")
	fs.StringVar(&cfg.DatabasePath, "f", cfg.DatabasePath, "cache database path")
	fs.IntVar(&cfg.MaxCacheItems, "m", cfg.MaxCacheItems, "cache bound (max items)")
	heartbeatInterval := fs.Int("i", int(cfg.HeartbeatInterval.Seconds()), "heartbeat interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.HeartbeatInterval = time.Duration(*heartbeatInterval) * time.Second
}
