package main

import (
	"context"
	"encoding/json"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/automaker/engine/internal/userdata"
)

// userStore opens the per-user data directory Store (spec.md §6:
// credentials, settings, and conversational-agent sessions, distinct
// from a project's feature records).
func userStore() (*userdata.Store, error) {
	dir, err := userdata.Dir()
	if err != nil {
		return nil, err
	}
	return userdata.NewStore(dir)
}

func loginCmd() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "Store a provider credential in the per-user data directory",
		ArgsUsage: "<provider> <token>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			provider, token := cmd.Args().Get(0), cmd.Args().Get(1)
			if provider == "" || token == "" {
				return fmt.Errorf("usage: automakerd login <provider> <token>")
			}
			store, err := userStore()
			if err != nil {
				return err
			}
			if err := store.SetCredential(provider, token); err != nil {
				return err
			}
			fmt.Printf("stored credential for %s\n", provider)
			return nil
		},
	}
}

func logoutCmd() *cli.Command {
	return &cli.Command{
		Name:      "logout",
		Usage:     "Remove a stored provider credential",
		ArgsUsage: "<provider>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			provider := cmd.Args().First()
			if provider == "" {
				return fmt.Errorf("provider argument is required")
			}
			store, err := userStore()
			if err != nil {
				return err
			}
			if err := store.RemoveCredential(provider); err != nil {
				return err
			}
			fmt.Printf("removed credential for %s\n", provider)
			return nil
		},
	}
}

func settingsCmd() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Inspect or update per-user settings",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print settings.json",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					store, err := userStore()
					if err != nil {
						return err
					}
					settings, err := store.GetSettings()
					if err != nil {
						return err
					}
					raw := make(map[string]any, len(settings.Extra)+1)
					for k, v := range settings.Extra {
						raw[k] = v
					}
					raw["setupComplete"] = settings.SetupComplete
					data, err := json.MarshalIndent(raw, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(data))
					return nil
				},
			},
			{
				Name:      "set-setup-complete",
				Usage:     "Mark the per-user onboarding flow complete or incomplete",
				ArgsUsage: "<true|false>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					val := cmd.Args().First()
					if val != "true" && val != "false" {
						return fmt.Errorf("expected true or false, got %q", val)
					}
					store, err := userStore()
					if err != nil {
						return err
					}
					settings, err := store.GetSettings()
					if err != nil {
						return err
					}
					settings.SetupComplete = val == "true"
					return store.SaveSettings(settings)
				},
			},
		},
	}
}

func sessionsCmd() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage general-purpose conversational agent sessions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List session ids, oldest first",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					store, err := userStore()
					if err != nil {
						return err
					}
					ids, err := store.ListSessions()
					if err != nil {
						return err
					}
					meta, err := store.SessionsMetadata()
					if err != nil {
						return err
					}
					for _, id := range ids {
						m := meta[id]
						fmt.Printf("%s  %s  %s\n", id, m.Name, m.ProjectPath)
					}
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Print a session's transcript",
				ArgsUsage: "<session-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return fmt.Errorf("session-id argument is required")
					}
					store, err := userStore()
					if err != nil {
						return err
					}
					data, err := store.SessionTranscript(id)
					if err != nil {
						return err
					}
					if data == nil {
						return fmt.Errorf("no transcript recorded for session %s", id)
					}
					fmt.Println(string(data))
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a session's metadata and transcript",
				ArgsUsage: "<session-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return fmt.Errorf("session-id argument is required")
					}
					store, err := userStore()
					if err != nil {
						return err
					}
					if err := store.DeleteSession(id); err != nil {
						return err
					}
					fmt.Printf("deleted session %s\n", id)
					return nil
				},
			},
		},
	}
}
