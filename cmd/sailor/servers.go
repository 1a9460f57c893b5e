package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sensiblebit/sailor/internal"
	"github.com/sensiblebit/sailor/internal/portainer"
	"github.com/spf13/cobra"
)

var (
	addName    string
	addCreds   credentialFlags
	loginCreds credentialFlags
	listFormat string
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Log in to a Portainer server and save it",
	Long: `Log in to a Portainer server and save it for later commands.

Username and password logins create a new access token on the server; the
password itself is never saved.`,
	Example: `  sailor add https://portainer.example.com:9443
  sailor add 10.0.0.5:9000 --name lab --token ptr_xxx`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var loginCmd = &cobra.Command{
	Use:               "login <server>",
	Short:             "Replace the access token of a saved server",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: serverCompletion,
	RunE:              runLogin,
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List saved servers",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var removeCmd = &cobra.Command{
	Use:               "remove <server>",
	Aliases:           []string{"rm"},
	Short:             "Forget a saved server",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: serverCompletion,
	RunE:              runRemove,
}

func init() {
	addCmd.Flags().StringVarP(&addName, "name", "n", "", "Name for the server (default: host)")
	addCreds.register(addCmd)
	loginCreds.register(loginCmd)

	listCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text or json")
	registerCompletion(listCmd, completionInput{"format", fixedCompletion("text", "json")})
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	client, err := portainer.NewClient(args[0], ws.guard)
	if err != nil {
		return err
	}
	session, err := portainer.Login(ctx, client, addCreds.credentials(), ws.prompt)
	if err != nil {
		return fmt.Errorf("logging in to %s: %w", client.URL(), err)
	}

	name := addName
	if name == "" && ws.prompt.Interactive() {
		if name, err = ws.prompt.Input(ctx, "Name", client.Host()); err != nil {
			return err
		}
	}

	reg := &internal.Registration{
		Name:     name,
		Host:     client.Host(),
		URL:      client.URL(),
		Username: session.Username,
		Token:    session.Token,
	}
	if err := ws.store.SaveServer(reg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s) at %s\n", reg.Name, reg.Username, reg.URL)
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	client, reg, err := ws.client(args[0])
	if err != nil {
		return err
	}
	creds := loginCreds.credentials()
	if creds.Username == "" && creds.Token == "" {
		creds.Username = reg.Username
	}
	session, err := portainer.Login(ctx, client, creds, ws.prompt)
	if err != nil {
		return fmt.Errorf("logging in to %s: %w", reg.URL, err)
	}

	reg.Username = session.Username
	reg.Token = session.Token
	if err := ws.store.SaveServer(reg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated the access token for %s\n", reg.Name)
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	servers, err := store.Servers()
	if err != nil {
		return err
	}
	return writeServerList(cmd.OutOrStdout(), servers, listFormat)
}

// writeServerList renders saved servers without their tokens.
func writeServerList(w io.Writer, servers []internal.Registration, format string) error {
	switch format {
	case "json":
		redacted := make([]internal.Registration, len(servers))
		for i, reg := range servers {
			reg.Token = ""
			redacted[i] = reg
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(redacted)
	case "text":
		if len(servers) == 0 {
			_, err := fmt.Fprint(w, "There are no saved servers right now!\nAdd your first server with the sailor add command!\n")
			return err
		}
		for _, reg := range servers {
			if _, err := fmt.Fprintf(w, " - %s (%s) at %s\n", reg.Name, reg.Username, reg.URL); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (use text or json)", format)
	}
}

func runRemove(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	removed, err := store.RemoveServer(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", removed.Name, removed.URL)
	return nil
}
