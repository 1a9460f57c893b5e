package main

import (
	"cmp"
	"os"
	"time"

	"github.com/sensiblebit/sailor"
	"github.com/sensiblebit/sailor/internal"
	"github.com/sensiblebit/sailor/internal/portainer"
	"github.com/spf13/cobra"
)

var (
	logLevel    string
	configPath  string
	rootsStore  string
	dialTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "sailor",
	Short: "Portainer command line client",
	Long: `Manage Portainer servers from the command line.

Servers with self-signed or otherwise invalid certificates can be trusted on
first use: the certificate is shown and, once approved, its fingerprint is
remembered for future connections.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		internal.SetupLogger(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration database path (default: user config directory)")
	rootCmd.PersistentFlags().StringVar(&rootsStore, "roots", "mozilla", "Trust anchors for certificate validation: system, mozilla")
	rootCmd.PersistentFlags().DurationVar(&dialTimeout, "timeout", 30*time.Second, "Connection timeout")

	registerCompletion(rootCmd, completionInput{"log-level", fixedCompletion("debug", "info", "warn", "error")})
	registerCompletion(rootCmd, completionInput{"roots", fixedCompletion("system", "mozilla")})
	registerCompletion(rootCmd, completionInput{"config", fileCompletion})

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(endpointsCmd)
	rootCmd.AddCommand(stacksCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(trustCmd)
}

// openStore opens the configuration database selected by --config.
func openStore() (*internal.ConfigStore, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = internal.DefaultConfigPath(); err != nil {
			return nil, err
		}
	}
	return internal.OpenConfigStore(path)
}

// workspace holds the collaborators shared by commands that read the
// configuration or connect to a server.
type workspace struct {
	store  *internal.ConfigStore
	trust  *sailor.TrustStore
	prompt *internal.Prompter
	guard  *sailor.Guard
}

func openWorkspace() (*workspace, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	roots, err := sailor.RootPool(rootsStore)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ws := &workspace{
		store:  store,
		trust:  sailor.NewTrustStore(store),
		prompt: internal.NewPrompter(os.Stdin, os.Stderr),
	}
	ws.guard, err = sailor.NewGuard(sailor.GuardOptions{
		Trust:       ws.trust,
		Prompter:    ws.prompt,
		Roots:       roots,
		Report:      internal.WarningReporter(os.Stderr),
		DialTimeout: dialTimeout,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return ws, nil
}

func (ws *workspace) Close() error {
	return ws.store.Close()
}

// client returns an authenticated client for the saved server matching query.
func (ws *workspace) client(query string) (*portainer.Client, *internal.Registration, error) {
	reg, err := ws.store.FindServer(query)
	if err != nil {
		return nil, nil, err
	}
	c, err := portainer.NewClient(reg.URL, ws.guard, portainer.WithToken(reg.Token))
	if err != nil {
		return nil, nil, err
	}
	return c, reg, nil
}

// credentialFlags are the login flags shared by add and login. Empty flags
// fall back to the SAILOR_* environment variables.
type credentialFlags struct {
	username string
	password string
	token    string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "Username (env SAILOR_USERNAME)")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "Password (env SAILOR_PASSWORD)")
	cmd.Flags().StringVarP(&f.token, "token", "t", "", "Access token (env SAILOR_TOKEN)")
}

func (f *credentialFlags) credentials() portainer.Credentials {
	return portainer.Credentials{
		Username: cmp.Or(f.username, os.Getenv("SAILOR_USERNAME")),
		Password: cmp.Or(f.password, os.Getenv("SAILOR_PASSWORD")),
		Token:    cmp.Or(f.token, os.Getenv("SAILOR_TOKEN")),
	}
}
