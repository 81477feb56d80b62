package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Charugundlavipul/soapai-cli/internal/api"
	"github.com/Charugundlavipul/soapai-cli/internal/config"
	"github.com/Charugundlavipul/soapai-cli/internal/document"
	"github.com/Charugundlavipul/soapai-cli/internal/plan"
)

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().String("appointment", "", "appointment id (required)")
	planCmd.Flags().StringSlice("members", nil, "participant ids (required)")
	planCmd.Flags().StringSlice("goals", nil, "goal names (required)")
	planCmd.Flags().String("duration", "30 Minutes", "session duration (15/30/45/60 Minutes)")
	planCmd.Flags().String("idea", "", "free-text activity idea")
	_ = planCmd.MarkFlagRequired("appointment")
	_ = planCmd.MarkFlagRequired("members")
	_ = planCmd.MarkFlagRequired("goals")
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate an activity plan (draft, preview, confirm)",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	appointment, _ := cmd.Flags().GetString("appointment")
	members, _ := cmd.Flags().GetStringSlice("members")
	goals, _ := cmd.Flags().GetStringSlice("goals")
	duration, _ := cmd.Flags().GetString("duration")
	idea, _ := cmd.Flags().GetString("idea")

	client := newClient(cfg)
	gen := plan.NewGenerator(client, appointment)
	if err := gen.SetSelection(members, goals); err != nil {
		return err
	}
	if err := gen.SetParameters(duration, idea); err != nil {
		return err
	}

	// Starting over keeps the member and goal selection on the generator,
	// so each round begins with a fresh draft for the same participants.
	scanner := bufio.NewScanner(os.Stdin)
	for {
		done, err := planRound(cmd, scanner, client, cfg, appointment, gen)
		if done || err != nil {
			return err
		}
	}
}

// planRound runs one draft → preview → confirm pass. Returns done=false
// when the user started over and another round should run.
func planRound(cmd *cobra.Command, scanner *bufio.Scanner, client *api.Client, cfg *config.Config, appointment string, gen *plan.Generator) (bool, error) {
	ctx := cmd.Context()

	draft, err := gen.GenerateDraft(ctx)
	if err != nil {
		return true, fmt.Errorf("draft: %w", err)
	}

	fmt.Printf("\n%s\n%s\n\nProposed materials:\n", draft.Name, draft.Description)
	for i, m := range draft.Materials {
		fmt.Printf("  [%d] %s\n", i+1, m)
	}

	selected, err := promptMaterials(scanner, draft.Materials)
	if err != nil {
		return true, err
	}
	if err := gen.SelectMaterials(selected); err != nil {
		return true, err
	}

	planMarkdown, err := gen.Preview(ctx)
	if err != nil {
		return true, fmt.Errorf("preview: %w", err)
	}

	doc, err := document.FromMarkdown(planMarkdown)
	if err != nil {
		return true, err
	}

	fmt.Printf("\n%s\n\n", planMarkdown)
	fmt.Println("e=edit plan  c=confirm  r=start over")
	for scanner.Scan() {
		switch scanner.Text() {
		case "e":
			if err := editDocument(doc); err != nil {
				fmt.Fprintf(os.Stderr, "Edit failed: %v\n", err)
			}
			fmt.Println("e=edit plan  c=confirm  r=start over")
		case "c":
			return true, confirmPlan(cmd, client, cfg.OutputDir, cfg.SessionType, appointment, gen, doc)
		case "r":
			if err := gen.Restart(); err != nil {
				return true, err
			}
			fmt.Println("Starting over with the same members and goals.")
			return false, nil
		default:
			fmt.Println("e=edit plan  c=confirm  r=start over")
		}
	}
	return true, scanner.Err()
}

// promptMaterials asks for a comma-separated index selection; empty input
// selects every candidate.
func promptMaterials(scanner *bufio.Scanner, candidates []string) ([]string, error) {
	fmt.Print("Materials to keep (comma-separated numbers, empty for all): ")
	if !scanner.Scan() {
		return nil, scanner.Err()
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return candidates, nil
	}

	var selected []string
	for _, part := range strings.Split(line, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || idx < 1 || idx > len(candidates) {
			return nil, fmt.Errorf("invalid material selection %q", part)
		}
		selected = append(selected, candidates[idx-1])
	}
	return selected, nil
}

// editDocument round-trips the document HTML through $EDITOR. The edited
// HTML becomes the authoritative content.
func editDocument(doc *document.Document) error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	tmp, err := os.CreateTemp("", "plan-*.html")
	if err != nil {
		return fmt.Errorf("create edit file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.WriteString(doc.HTML()); err != nil {
		tmp.Close()
		return fmt.Errorf("write edit file: %w", err)
	}
	tmp.Close()

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run editor: %w", err)
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read edited file: %w", err)
	}
	doc.SetHTML(string(edited))
	return nil
}

func confirmPlan(cmd *cobra.Command, backend plan.Backend, outputDir, sessionType, appointment string, gen *plan.Generator, doc *document.Document) error {
	ctx := cmd.Context()

	activity, err := gen.Confirm(ctx)
	if err != nil {
		return fmt.Errorf("confirm: %w", err)
	}
	fmt.Printf("Activity %q created (id %s).\n", activity.Name, activity.ID)

	fanout := plan.NewFanout(backend, appointment, outputDir, sessionType)
	pdfPath, err := fanout.Run(ctx, activity, gen.Goals(), doc)
	if err != nil {
		if errors.Is(err, plan.ErrFanoutPartial) {
			fmt.Fprintln(os.Stderr, "Save failed for one or more members - see the log for details.")
			fmt.Printf("Plan PDF: %s\n", pdfPath)
			return nil
		}
		// The activity stays persisted server-side even when the PDF step
		// fails; nothing to roll back here.
		return err
	}

	fmt.Printf("Plan PDF: %s\n", filepath.Clean(pdfPath))
	return nil
}
