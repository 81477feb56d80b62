package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Charugundlavipul/soapai-cli/internal/capture"
	"github.com/Charugundlavipul/soapai-cli/internal/config"
	"github.com/Charugundlavipul/soapai-cli/internal/state"
)

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().String("appointment", "", "appointment id (required)")
	_ = recordCmd.MarkFlagRequired("appointment")
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a session and hand it to the upload workflow",
	Args:  cobra.NoArgs,
	RunE:  runRecord,
}

const recordHelp = "Commands: s=start  p=pause  r=resume  x=stop  o=reopen devices  q=quit"

func runRecord(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)
	appointment, _ := cmd.Flags().GetString("appointment")
	ctx := cmd.Context()

	source := capture.NewFFmpegSource(cfg.Capture.Format, cfg.DataDir)
	session := capture.NewSession(source)
	defer session.Close()

	sel := capture.Selection{Camera: cfg.Capture.Camera, Microphone: cfg.Capture.Microphone}
	if err := session.SelectDevices(ctx, sel); err != nil {
		reportAcquireFailure(err)
	}

	fmt.Println(recordHelp)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch scanner.Text() {
		case "s":
			report(session.StartRecording(), session)
		case "p":
			report(session.Pause(), session)
		case "r":
			report(session.Resume(), session)
		case "x":
			if err := session.Stop(); err != nil {
				report(err, session)
				continue
			}
			report(nil, session)
			again, err := preview(ctx, cfg, appointment, session, scanner)
			if err != nil {
				return err
			}
			if !again {
				return nil
			}
			// Record again: the loop continues, acquired or not.
		case "o":
			report(session.Open(ctx), session)
		case "q":
			return nil
		default:
			fmt.Println(recordHelp)
		}
	}
	return scanner.Err()
}

func report(err error, session *capture.Session) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return
	}
	fmt.Printf("[%s] %ds recorded\n", session.Stage(), session.Elapsed())
}

// reportAcquireFailure prints the non-fatal acquisition message: the
// session stays ready with controls disabled until a reopen succeeds.
func reportAcquireFailure(err error) {
	fmt.Fprintf(os.Stderr, "Could not open capture devices: %v\n", err)
	fmt.Fprintln(os.Stderr, "Recording controls are disabled. Press 'o' to retry.")
}

// preview plays back the finalized blob and offers confirm / record again
// / discard. Returns true when the caller should keep running the record
// loop for another take.
func preview(ctx context.Context, cfg *config.Config, appointment string, session *capture.Session, scanner *bufio.Scanner) (bool, error) {
	blob := session.Blob()
	if blob == nil {
		return false, fmt.Errorf("no recording produced")
	}

	previewPath := filepath.Join(os.TempDir(), blob.Filename(time.Now()))
	if err := os.WriteFile(previewPath, blob.Data, 0o644); err != nil {
		return false, fmt.Errorf("write preview file: %w", err)
	}
	defer os.Remove(previewPath)

	playback := capture.NewPlayback(nil)
	if playback.Viewer(blob.MediaType) == capture.ViewerFallback {
		fmt.Println("Native playback unavailable for", blob.MediaType, "- opening with system viewer.")
	}
	if err := playback.Command(blob.MediaType, previewPath).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Playback failed: %v\n", err)
	}

	fmt.Println("u=confirm upload  a=record again  d=discard")
	for scanner.Scan() {
		switch scanner.Text() {
		case "u":
			return false, confirmUpload(ctx, cfg, appointment, session, blob)
		case "a":
			if err := session.RecordAgain(ctx); err != nil {
				reportAcquireFailure(err)
			} else {
				fmt.Println("Ready. Press 's' to start recording.")
			}
			return true, nil
		case "d":
			return false, nil
		default:
			fmt.Println("u=confirm upload  a=record again  d=discard")
		}
	}
	return false, scanner.Err()
}

// confirmUpload saves the blob under the data dir, indexes it, and issues
// the multipart video upload.
func confirmUpload(ctx context.Context, cfg *config.Config, appointment string, session *capture.Session, blob *capture.Blob) error {
	session.SetBusy(true)
	defer session.SetBusy(false)

	now := time.Now()
	recDir := filepath.Join(cfg.DataDir, "recordings")
	if err := os.MkdirAll(recDir, 0o755); err != nil {
		return fmt.Errorf("create recordings dir: %w", err)
	}
	path := filepath.Join(recDir, blob.Filename(now))
	if err := os.WriteFile(path, blob.Data, 0o644); err != nil {
		return fmt.Errorf("save recording: %w", err)
	}

	store := state.NewRecordingStore(filepath.Join(cfg.DataDir, "recordings.json"))
	rec := &state.Recording{
		ID:          uuid.NewString(),
		Appointment: appointment,
		Path:        path,
		MediaType:   blob.MediaType,
		Seconds:     session.Elapsed(),
		CreatedAt:   now,
	}
	if err := store.Add(rec); err != nil {
		return fmt.Errorf("index recording: %w", err)
	}

	client := newClient(cfg)
	video, err := client.UploadVideo(ctx, appointment, filepath.Base(path), blob.Data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		fmt.Printf("Recording kept locally as %s. Retry with: soapai upload %s\n", rec.ID, rec.ID)
		return nil
	}
	if err := store.SetVideoID(rec.ID, video.ID); err != nil {
		return err
	}
	fmt.Printf("Uploaded. Video id: %s\n", video.ID)
	return nil
}
