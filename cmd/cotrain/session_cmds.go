package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cotrain/internal/app"
	"cotrain/pkg/types"
)

func newCreateCmd() *cobra.Command {
	var participants int
	var orgName, label string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session as lead and adopt its identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.Application) error {
				identity, err := application.Sessions().Create(ctx, participants, orgName, label)
				if err != nil {
					return err
				}
				fmt.Printf("Session created: %s\n", identity.SessionID)
				fmt.Printf("Share this ID with the other %d participants.\n", participants-1)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&participants, "participants", "n", types.MinParticipants, "Total number of parties (including the lead)")
	cmd.Flags().StringVar(&orgName, "org", "", "Organization name shown to other parties")
	cmd.Flags().StringVar(&label, "label", "", "Target column the model predicts")
	cmd.MarkFlagRequired("org")
	cmd.MarkFlagRequired("label")

	return cmd
}

func newJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join SESSION_ID",
		Short: "Join an existing session as participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.Application) error {
				identity, err := application.Sessions().Join(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Joined session %s as participant %s\n", identity.SessionID, identity.UserID)
				return nil
			})
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Restore the profile's stored session and show where it stands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.Application) error {
				identity := application.Identity()
				if identity == nil {
					fmt.Println("No stored session. Use create or join first.")
					return nil
				}
				fmt.Printf("Session %s (%s, %d parties)\n",
					identity.SessionID, identity.UserType, identity.ParticipantCount)

				for _, stage := range []string{types.StageFormUpload, types.StageLog, types.StageResult} {
					decision, err := application.Runner().EnterStage(ctx, stage)
					if err != nil {
						return err
					}
					if decision.Render() {
						fmt.Printf("Current stage: %s\n", stage)
						return nil
					}
				}
				fmt.Println("Current stage: landing")
				return nil
			})
		},
	}
}

func newLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Clear the stored session identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.Application) error {
				if err := application.Sessions().Leave(ctx); err != nil {
					return err
				}
				fmt.Println("Session cleared. This profile is back at the landing stage.")
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show readiness of all parties and the channel state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, application *app.Application) error {
				identity := application.Identity()
				if identity == nil {
					fmt.Println("No stored session.")
					return nil
				}

				readiness, err := application.Runner().Readiness()
				if err != nil {
					return err
				}

				fmt.Printf("Session %s — channel %s\n", identity.SessionID, application.Runner().ChannelState())
				fmt.Printf("Parties reported: %d/%d\n", len(readiness.StatusMap), readiness.ParticipantCount)
				for userID, done := range readiness.StatusMap {
					marker := "waiting"
					if done {
						marker = "ready"
					}
					fmt.Printf("  %s: %s\n", userID, marker)
				}
				if readiness.Ready() {
					fmt.Println("All parties ready.")
				}
				if readiness.ProceedSignaled {
					fmt.Println("Proceed signaled.")
				}
				if readiness.TrainingStarted {
					fmt.Println("Training started.")
				}
				return nil
			})
		},
	}
}
