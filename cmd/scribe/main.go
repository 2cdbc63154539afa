package main

import (
	"fmt"
	"os"

	"github.com/snarg/scribe/internal/config"
	"github.com/spf13/cobra"
)

var version = "dev"

var overrides config.Overrides

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Upload audio, transcribe it with a speech-to-text API, keep a history",
	Long: `scribe serves a small HTTP API:

- POST /upload sends the "audio" file to the configured provider and stores the transcript
- GET /transcriptions lists stored transcripts, newest first
- DELETE /transcriptions clears the history

Configuration comes from environment variables and an optional .env file;
flags override both.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), overrides)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	f.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address, overrides HTTP_ADDR and PORT")
	f.StringVar(&overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	f.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL")
	f.StringVar(&overrides.UploadDir, "upload-dir", "", "directory for temporary upload files")
	f.StringVar(&overrides.WatchDir, "watch-dir", "", "transcribe audio files dropped into this directory")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
