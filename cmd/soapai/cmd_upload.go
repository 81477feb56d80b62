package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Charugundlavipul/soapai-cli/internal/state"
)

func init() {
	rootCmd.AddCommand(uploadCmd, recordingsCmd)
	recordingsCmd.AddCommand(recordingsListCmd, recordingsRemoveCmd)
}

func recordingStore() *state.RecordingStore {
	cfg := loadConfig()
	return state.NewRecordingStore(filepath.Join(cfg.DataDir, "recordings.json"))
}

var uploadCmd = &cobra.Command{
	Use:   "upload <recording-id>",
	Short: "Upload a stored recording as a session video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		store := state.NewRecordingStore(filepath.Join(cfg.DataDir, "recordings.json"))
		rec, err := store.Get(args[0])
		if err != nil {
			return err
		}
		if rec.Uploaded() {
			return fmt.Errorf("recording already uploaded as video %s", rec.VideoID)
		}

		data, err := os.ReadFile(rec.Path)
		if err != nil {
			return fmt.Errorf("read recording: %w", err)
		}

		client := newClient(cfg)
		video, err := client.UploadVideo(cmd.Context(), rec.Appointment, filepath.Base(rec.Path), data)
		if err != nil {
			return fmt.Errorf("upload recording: %w", err)
		}
		if err := store.SetVideoID(rec.ID, video.ID); err != nil {
			return err
		}
		fmt.Printf("Uploaded. Video id: %s\n", video.ID)
		return nil
	},
}

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "Manage local session recordings",
}

var recordingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local recordings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := recordingStore().List()
		if err != nil {
			return fmt.Errorf("list recordings: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No recordings.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAPPOINTMENT\tSECONDS\tCREATED\tVIDEO")
		for _, r := range recs {
			video := "-"
			if r.Uploaded() {
				video = r.VideoID
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				r.ID,
				r.Appointment,
				r.Seconds,
				r.CreatedAt.Format("2006-01-02 15:04"),
				video,
			)
		}
		return w.Flush()
	},
}

var recordingsRemoveCmd = &cobra.Command{
	Use:   "remove <recording-id>",
	Short: "Remove a local recording and its media file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := recordingStore()
		rec, err := store.Get(args[0])
		if err != nil {
			return err
		}
		if err := store.Remove(rec.ID); err != nil {
			return err
		}
		if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: could not remove media file: %v\n", err)
		}
		fmt.Printf("Recording %s removed.\n", rec.ID)
		return nil
	},
}
