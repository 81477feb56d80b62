package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Charugundlavipul/soapai-cli/internal/api"
	"github.com/Charugundlavipul/soapai-cli/internal/document"
)

func init() {
	rootCmd.AddCommand(activityCmd)
	activityCmd.AddCommand(activityEditCmd, activityDeleteCmd)

	activityEditCmd.Flags().String("appointment", "", "appointment id (required)")
	activityEditCmd.Flags().String("name", "", "activity name (required)")
	activityEditCmd.Flags().StringSlice("members", nil, "participant ids (required)")
	activityEditCmd.Flags().String("description-html", "", "path to an edited plan HTML file")
	_ = activityEditCmd.MarkFlagRequired("appointment")
	_ = activityEditCmd.MarkFlagRequired("name")
	_ = activityEditCmd.MarkFlagRequired("members")

	activityDeleteCmd.Flags().String("appointment", "", "appointment id (required)")
	_ = activityDeleteCmd.MarkFlagRequired("appointment")
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Edit or delete a persisted activity",
}

var activityEditCmd = &cobra.Command{
	Use:   "edit <activity-id>",
	Short: "Edit an activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		appointment, _ := cmd.Flags().GetString("appointment")
		name, _ := cmd.Flags().GetString("name")
		members, _ := cmd.Flags().GetStringSlice("members")
		htmlPath, _ := cmd.Flags().GetString("description-html")

		req := api.UpdateActivityRequest{Name: name, Members: members}
		if htmlPath != "" {
			html, err := os.ReadFile(htmlPath)
			if err != nil {
				return fmt.Errorf("read description: %w", err)
			}
			// The PATCH body carries markdown; convert the edited HTML back.
			md, err := document.FromHTML(string(html)).Markdown()
			if err != nil {
				return err
			}
			req.Description = md
		}

		client := newClient(cfg)
		activity, err := client.UpdateActivity(cmd.Context(), appointment, args[0], req)
		if err != nil {
			return fmt.Errorf("update activity: %w", err)
		}
		fmt.Printf("Activity %q updated.\n", activity.Name)
		return nil
	},
}

var activityDeleteCmd = &cobra.Command{
	Use:   "delete <activity-id>",
	Short: "Delete an activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		appointment, _ := cmd.Flags().GetString("appointment")

		client := newClient(cfg)
		if err := client.DeleteActivity(cmd.Context(), appointment, args[0]); err != nil {
			return fmt.Errorf("delete activity: %w", err)
		}
		fmt.Println("Activity deleted.")
		return nil
	},
}
