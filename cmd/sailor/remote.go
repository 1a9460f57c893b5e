package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sensiblebit/sailor/internal"
	"github.com/sensiblebit/sailor/internal/portainer"
	"github.com/spf13/cobra"
)

var (
	pullEndpoint  int
	buildEndpoint int
	buildTags     []string
	buildFile     string
	buildPull     bool
	buildNoCache  bool
)

var endpointsCmd = &cobra.Command{
	Use:               "endpoints <server>",
	Short:             "List the environments of a saved server",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: serverCompletion,
	RunE:              runEndpoints,
}

var stacksCmd = &cobra.Command{
	Use:               "stacks <server>",
	Short:             "List the stacks of a saved server",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: serverCompletion,
	RunE:              runStacks,
}

var pullCmd = &cobra.Command{
	Use:               "pull <server> <image>",
	Short:             "Pull an image on an environment",
	Example:           `  sailor pull lab nginx:1.27 --endpoint 2`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: serverCompletion,
	RunE:              runPull,
}

var buildCmd = &cobra.Command{
	Use:   "build <server> <context>",
	Short: "Build an image on an environment",
	Long: `Build an image on an environment's Docker daemon.

The build context is a directory, a .tar, .tar.gz, .tgz, or .zip file, or -
to read a tar archive from stdin. Directories and ZIP files are packed as tar
while they are uploaded. Build output is streamed as it arrives; a failing
build step ends the command with an error.`,
	Example: `  sailor build lab . --tag app:latest
  tar -c . | sailor build lab - --tag app:dev --endpoint 2`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: serverCompletion,
	RunE:              runBuild,
}

func init() {
	pullCmd.Flags().IntVarP(&pullEndpoint, "endpoint", "e", 0, "Environment ID (default: the only environment)")

	buildCmd.Flags().IntVarP(&buildEndpoint, "endpoint", "e", 0, "Environment ID (default: the only environment)")
	buildCmd.Flags().StringArrayVarP(&buildTags, "tag", "t", nil, "Image name and tag (repeatable)")
	buildCmd.Flags().StringVarP(&buildFile, "file", "f", "", "Dockerfile path inside the build context")
	buildCmd.Flags().BoolVar(&buildPull, "pull", false, "Always pull newer base images")
	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "Do not use the build cache")
}

func runEndpoints(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	client, _, err := ws.client(args[0])
	if err != nil {
		return err
	}
	endpoints, err := client.Endpoints(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	styles := internal.NewStyles(w)
	fmt.Fprintln(w, styles.Question.Render(fmt.Sprintf("%-6s %-24s %-22s %s", "ID", "NAME", "TYPE", "URL")))
	for _, ep := range endpoints {
		fmt.Fprintf(w, "%-6d %-24s %-22s %s\n", ep.ID, ep.Name, ep.Type, ep.URL)
	}
	return nil
}

func runStacks(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	client, _, err := ws.client(args[0])
	if err != nil {
		return err
	}
	stacks, err := client.Stacks(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	styles := internal.NewStyles(w)
	fmt.Fprintln(w, styles.Question.Render(fmt.Sprintf("%-6s %-24s %-9s %-9s %s", "ID", "NAME", "ENDPOINT", "STATUS", "CREATED")))
	for _, st := range stacks {
		created := "-"
		if st.CreationDate > 0 {
			created = time.Unix(st.CreationDate, 0).Format(time.DateTime)
		}
		fmt.Fprintf(w, "%-6d %-24s %-9d %-9s %s\n", st.ID, st.Name, st.EndpointID, st.StatusString(), created)
	}
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	client, _, err := ws.client(args[0])
	if err != nil {
		return err
	}
	endpointID, err := resolveEndpoint(ctx, client, ws.prompt, pullEndpoint)
	if err != nil {
		return err
	}
	return client.PullImage(ctx, endpointID, args[1], cmd.OutOrStdout())
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(buildTags) == 0 {
		return errors.New("at least one --tag is required")
	}

	var buildContext io.Reader = cmd.InOrStdin()
	if args[1] != "-" {
		rc, err := internal.OpenBuildContext(args[1], internal.DefaultArchiveLimits())
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()
		buildContext = rc
	}

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	client, _, err := ws.client(args[0])
	if err != nil {
		return err
	}
	endpointID, err := resolveEndpoint(ctx, client, ws.prompt, buildEndpoint)
	if err != nil {
		return err
	}
	return client.BuildImage(ctx, endpointID, buildContext, portainer.BuildOptions{
		Tags:       buildTags,
		Dockerfile: buildFile,
		Pull:       buildPull,
		NoCache:    buildNoCache,
	}, cmd.OutOrStdout())
}

// endpointLister is the part of the client resolveEndpoint needs.
type endpointLister interface {
	Endpoints(ctx context.Context) ([]portainer.Endpoint, error)
}

// endpointChooser picks one of several environments.
type endpointChooser interface {
	Interactive() bool
	Select(ctx context.Context, label string, options []string) (int, error)
}

// resolveEndpoint returns requested when set. Otherwise a server with a single
// environment uses it, and with several the user is asked to pick one.
func resolveEndpoint(ctx context.Context, c endpointLister, ask endpointChooser, requested int) (int, error) {
	if requested > 0 {
		return requested, nil
	}
	endpoints, err := c.Endpoints(ctx)
	if err != nil {
		return 0, err
	}
	switch len(endpoints) {
	case 0:
		return 0, errors.New("the server has no environments")
	case 1:
		return endpoints[0].ID, nil
	}
	if !ask.Interactive() {
		return 0, errors.New("the server has several environments; choose one with --endpoint")
	}

	options := make([]string, len(endpoints))
	for i, ep := range endpoints {
		options[i] = ep.Name + " (" + strconv.Itoa(ep.ID) + ")"
	}
	idx, err := ask.Select(ctx, "Which environment?", options)
	if err != nil {
		return 0, err
	}
	return endpoints[idx].ID, nil
}
