package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   TCP bind address (e.g., ":6789")
//	-d string   PostgreSQL DSN
//	-s string   resume token HMAC secret key
//	-t int      resume token validity, hours
//	-r int      history retention, days
//	-i int      cleanup interval, minutes
//	-m int      per-entry content ceiling, bytes
//	-u string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-r", "-i", "-m", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	resumeTokenValidity := fs.Int("t", int(config.ResumeTokenValidityDuration.Hours()), "resume token validity (in hours)")
	fs.IntVar(&config.RetentionDays, "r", config.RetentionDays, "history retention (in days)")
	cleanupInterval := fs.Int("i", int(config.CleanupInterval.Minutes()), "cleanup interval (in minutes)")
	fs.IntVar(&config.MaxContentBytes, "m", config.MaxContentBytes, "max content size (in bytes)")

	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ResumeTokenValidityDuration = time.Duration(*resumeTokenValidity) * time.Hour
	config.CleanupInterval = time.Duration(*cleanupInterval) * time.Minute
}
