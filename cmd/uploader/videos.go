package main

import (
	"alcyxob/video-uploads/internal/uploader"
	"fmt"

	"github.com/spf13/cobra"
)

var GetCmd = &cobra.Command{
	Use:   "get <videoId>",
	Short: "Show one video, including a fresh read URL when ready",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		video, err := uploader.NewAPIClient(apiURL, apiToken, nil).GetVideo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, video)
	},
}

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your videos, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		status, _ := cmd.Flags().GetString("status")

		page, err := uploader.NewAPIClient(apiURL, apiToken, nil).ListVideos(cmd.Context(), limit, offset, status)
		if err != nil {
			return err
		}
		return printJSON(cmd, page)
	},
}

var DeleteCmd = &cobra.Command{
	Use:   "delete <videoId>",
	Short: "Delete a video and its blob",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := uploader.NewAPIClient(apiURL, apiToken, nil).DeleteVideo(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	ListCmd.Flags().Int("limit", 0, "page size (server default 20, max 100)")
	ListCmd.Flags().Int("offset", 0, "videos to skip")
	ListCmd.Flags().String("status", "", "filter by status")
}
