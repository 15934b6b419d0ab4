package commands

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/imyashkale/mcphub/internal/models"
)

var (
	deleteYes bool
	testInput string
	testProbe bool
	testJSON  bool
)

func init() {
	serversDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")

	serversTestCmd.Flags().StringVar(&testInput, "input", "", "text sent to the echo tool")
	serversTestCmd.Flags().BoolVar(&testProbe, "probe", false, "list the server's tools instead of calling echo")
	serversTestCmd.Flags().BoolVar(&testJSON, "json", false, "Output in JSON format")
	serversTestCmd.MarkFlagsMutuallyExclusive("input", "probe")

	serversCmd.AddCommand(serversDeleteCmd, serversTestCmd)
}

var serversDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a server you own",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		user, err := a.requireUser(ctx)
		if err != nil {
			return err
		}
		listing, err := getListing(ctx, a, args[0])
		if err != nil {
			return err
		}
		if !listing.IsOwnedBy(user.Id) {
			return errors.WithHint(
				errors.Newf("you do not own server %s", listing.Id),
				"only the owner can delete a listing")
		}

		if !deleteYes {
			if !confirm(cmd.ErrOrStderr(), stdin, fmt.Sprintf("Delete %s (%s)?", listing.Name, listing.Id)) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
				return nil
			}
		}

		if err := a.api.DeleteServer(ctx, listing.Id); err != nil {
			return errors.Wrapf(err, "deleting server %s", listing.Id)
		}
		printSuccess(cmd.OutOrStdout(), "Deleted %s", listing.Name)
		return nil
	},
}

var serversTestCmd = &cobra.Command{
	Use:   "test <id>",
	Short: "Call a server's MCP endpoint",
	Long: `Connect to a server's MCP endpoint and either call its echo tool
with --input or list its tools with --probe.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if _, err := a.requireUser(ctx); err != nil {
			return err
		}

		result, err := a.api.TestServer(ctx, args[0], models.TestServerRequest{Input: testInput, Probe: testProbe})
		if err != nil {
			return errors.Wrapf(err, "testing server %s", args[0])
		}

		out := cmd.OutOrStdout()
		if testJSON {
			return writeJSON(out, result)
		}
		if !result.Success {
			return errors.Newf("test failed after %dms: %s", result.DurationMs, result.Error)
		}

		printSuccess(out, "Endpoint answered in %dms", result.DurationMs)
		if result.ServerName != "" {
			fmt.Fprintf(out, "  server: %s %s\n", result.ServerName, result.ServerVersion)
		}
		if len(result.Tools) > 0 {
			fmt.Fprintf(out, "  tools: %s\n", joinTags(result.Tools))
		}
		if result.Response != nil {
			fmt.Fprintf(out, "  response: %v\n", result.Response)
		}
		return nil
	},
}
