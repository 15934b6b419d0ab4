package commands

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/imyashkale/mcphub/internal/services"
)

var readmeRemote bool

func init() {
	readmeCmd.Flags().BoolVar(&readmeRemote, "remote", false, "fetch through the API server instead of directly")
	rootCmd.AddCommand(readmeCmd)
}

var readmeCmd = &cobra.Command{
	Use:   "readme <github-url>",
	Short: "Print the README of a GitHub repository",
	Long: `Print the README of a GitHub repository, trying the main branch
first and master second. This is the text a registration would use as
documentation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		url := args[0]

		if _, _, ok := services.ParseGitHubURL(url); !ok {
			return errors.WithHint(
				errors.Newf("%q is not a GitHub repository URL", url),
				"use https://github.com/<owner>/<repo>")
		}

		var content string
		var found bool
		if readmeRemote {
			resp, err := a.api.Readme(ctx, url)
			if err != nil {
				return errors.Wrap(err, "fetching README")
			}
			content, found = resp.Content, resp.Found
		} else {
			content, found = a.readme.FetchReadme(ctx, url)
		}

		if !found {
			return errors.Newf("no README found on main or master for %s", url)
		}
		fmt.Fprint(cmd.OutOrStdout(), content)
		return nil
	},
}
