package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// completionInput holds the parameters for registering a shell completion
// function on a command flag.
type completionInput struct {
	flagName     string
	completeFunc func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)
}

// registerCompletion registers a shell completion function for a flag on a
// command. It panics if the flag does not exist (programmer error).
func registerCompletion(cmd *cobra.Command, in completionInput) {
	if err := cmd.RegisterFlagCompletionFunc(in.flagName, in.completeFunc); err != nil {
		panic(fmt.Sprintf("%s --%s: %v", cmd.Name(), in.flagName, err))
	}
}

// fixedCompletion returns a shell completion function that suggests the given
// values with no file completion fallback.
func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// fileCompletion suggests files using the shell's default behavior.
func fileCompletion(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveDefault
}

// serverCompletion suggests the names of saved servers for the first
// positional argument.
func serverCompletion(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveDefault
	}
	store, err := openStore()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer func() { _ = store.Close() }()

	servers, err := store.Servers()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	names := make([]string, 0, len(servers))
	for _, reg := range servers {
		names = append(names, reg.Name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
