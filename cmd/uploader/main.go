// Command uploader drives the video upload API from a terminal: request a
// signed URL, transfer the file with retries, confirm, and query results.
package main

import (
	"encoding/json"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	apiURL   string
	apiToken string
	logLevel string
	logger   = logrus.New()
)

var RootCmd = &cobra.Command{
	Use:           "uploader",
	Short:         "Upload and manage videos through the video uploads API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		logger.SetOutput(os.Stderr)
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("VIDEO_API_URL", "http://localhost:8080"), "base URL of the API")
	RootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("VIDEO_API_TOKEN"), "bearer token")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")

	RootCmd.AddCommand(UploadCmd, GetCmd, ListCmd, DeleteCmd, TokenCmd)
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		logger.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
