package main

import (
	"alcyxob/video-uploads/internal/uploader"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var UploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a video file and confirm it",
	Args:  cobra.ExactArgs(1),
	RunE:  uploadCmdF,
}

func init() {
	f := UploadCmd.Flags()
	f.String("content-type", "", "MIME type; guessed from the extension when empty")
	f.Float64("duration", 0, "duration in seconds")
	f.Float64("fps", 0, "frames per second")
	f.String("angle", "", "camera angle")
	f.String("resolution", "", "resolution, e.g. 1920x1080")
	f.StringToString("meta", nil, "extra metadata as key=value pairs")
	f.Int("max-retries", uploader.DefaultMaxRetries, "retries after a transient failure")
	f.Duration("base-delay", uploader.DefaultBaseDelay, "first backoff delay, doubled per retry")
	f.Duration("attempt-timeout", 10*time.Minute, "upper bound for one transfer attempt")
}

func uploadCmdF(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	in := uploader.FileUpload{Path: args[0]}
	in.ContentType, _ = f.GetString("content-type")

	if f.Changed("duration") {
		d, _ := f.GetFloat64("duration")
		in.Duration = &d
		in.Confirm.Duration = &d
	}
	if f.Changed("fps") {
		fps, _ := f.GetFloat64("fps")
		in.FPS = &fps
		in.Confirm.FPS = &fps
	}
	if f.Changed("angle") {
		angle, _ := f.GetString("angle")
		in.Angle = &angle
		in.Confirm.Angle = &angle
	}
	if f.Changed("resolution") {
		res, _ := f.GetString("resolution")
		in.Confirm.Resolution = &res
	}
	in.Confirm.Metadata, _ = f.GetStringToString("meta")

	maxRetries, _ := f.GetInt("max-retries")
	if maxRetries == 0 {
		maxRetries = -1
	}
	baseDelay, _ := f.GetDuration("base-delay")
	attemptTimeout, _ := f.GetDuration("attempt-timeout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flow := &uploader.Flow{
		Client:    uploader.NewAPIClient(apiURL, apiToken, nil),
		Transport: uploader.NewHTTPTransport(nil),
		Config: uploader.Config{
			MaxRetries:     maxRetries,
			BaseDelay:      baseDelay,
			AttemptTimeout: attemptTimeout,
			Logger:         logger,
		},
		Logger: logger,
	}

	out := cmd.ErrOrStderr()
	confirmation, err := flow.Upload(ctx, in, func(p uploader.Progress) {
		fmt.Fprintf(out, "\r%s %5.1f%%", progressBar(p.Fraction, 30), p.Fraction*100)
	})
	fmt.Fprintln(out)
	if err != nil {
		return err
	}
	return printJSON(cmd, confirmation)
}

func progressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
