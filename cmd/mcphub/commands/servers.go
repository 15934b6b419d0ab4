package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/imyashkale/mcphub/internal/catalog"
	"github.com/imyashkale/mcphub/internal/client"
	"github.com/imyashkale/mcphub/internal/models"
)

var (
	listStatus   string
	listSort     string
	listOrder    string
	listSearch   string
	listTags     []string
	listLimit    int
	listFeatured bool
	listJSON     bool
	showJSON     bool
)

func init() {
	f := serversListCmd.Flags()
	f.StringVar(&listStatus, "status", "", "only show servers with this status (active, inactive, deprecated)")
	f.StringVar(&listSort, "sort", "", "sort by rating, users, created or updated")
	f.StringVar(&listOrder, "order", "desc", "sort order; only desc is supported")
	f.StringVar(&listSearch, "search", "", "case-insensitive text in name or description")
	f.StringSliceVar(&listTags, "tag", nil, "only show servers carrying all of these tags")
	f.IntVar(&listLimit, "limit", 0, "show at most this many servers")
	f.BoolVar(&listFeatured, "featured", false, "show the featured servers")
	f.BoolVar(&listJSON, "json", false, "Output in JSON format")

	serversShowCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")

	serversCmd.AddCommand(serversListCmd, serversShowCmd)
	rootCmd.AddCommand(serversCmd)
}

var serversCmd = &cobra.Command{
	Use:     "servers",
	Aliases: []string{"server", "mcp"},
	Short:   "Browse and manage MCP server listings",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered MCP servers",
	Long: `List registered MCP servers.

Filtering and sorting happen locally on the full list. Sorting is always
descending; --order asc is accepted but not implemented.`,
	Example: `  # Highest rated active servers
  mcphub servers list --status active --sort rating

  # Servers tagged with both "ai" and "search"
  mcphub servers list --tag ai --tag search

  # Output as JSON
  mcphub servers list --json`,
	Args: cobra.NoArgs,
	RunE: runServersList,
}

func runServersList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	filter, err := listFilter()
	if err != nil {
		return err
	}
	if filter.SortOrder == catalog.SortAsc {
		printWarning(cmd.ErrOrStderr(), "ascending order is not supported, sorting descending")
	}

	listings, err := a.api.ListServers(ctx)
	if err != nil {
		return errors.Wrap(err, "listing servers")
	}
	listings = catalog.Apply(listings, filter)

	if listJSON {
		out := make([]models.ServerResponse, 0, len(listings))
		for i := range listings {
			out = append(out, listings[i].ToResponse())
		}
		return writeJSON(cmd.OutOrStdout(), models.ServerListResponse{Servers: out, Total: len(out)})
	}

	renderListings(cmd.OutOrStdout(), listings, a.viewerId(ctx))
	return nil
}

func listFilter() (catalog.Filter, error) {
	f := catalog.Filter{
		Search: listSearch,
		Tags:   models.NormalizeTags(listTags),
		Limit:  listLimit,
	}
	if listStatus != "" {
		f.Status = models.ServerStatus(strings.ToLower(listStatus))
		if !f.Status.Valid() {
			return f, errors.Newf("invalid status %q: want active, inactive or deprecated", listStatus)
		}
	}

	var err error
	if f.SortBy, err = catalog.ParseSortField(listSort); err != nil {
		return f, err
	}
	if f.SortOrder, err = catalog.ParseSortOrder(listOrder); err != nil {
		return f, err
	}
	if listFeatured {
		f.SortBy = catalog.SortRating
		f.Limit = catalog.FeaturedCount
	}
	return f, nil
}

// renderListings writes a table; servers owned by viewerId are marked
func renderListings(w io.Writer, listings []models.ServerListing, viewerId string) {
	if len(listings) == 0 {
		fmt.Fprintln(w, "No servers found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tRATING\tUSERS\tTAGS\t")
	for _, l := range listings {
		name := truncate(l.Name, 32)
		if l.IsOwnedBy(viewerId) {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%d\t%s\t\n",
			l.Id, name, l.Status, l.Metrics.Rating, l.Metrics.Users, truncate(joinTags(l.Tags), 30))
	}
	_ = tw.Flush()

	if viewerId != "" {
		dimColor.Fprintln(w, "* owned by you")
	}
}

var serversShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a server listing and its documentation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		listing, err := getListing(cmd.Context(), a, args[0])
		if err != nil {
			return err
		}

		if showJSON {
			return writeJSON(cmd.OutOrStdout(), listing.ToResponse())
		}
		renderListing(cmd.OutOrStdout(), listing, a.viewerId(cmd.Context()))
		return nil
	},
}

func getListing(ctx context.Context, a *app, id string) (models.ServerListing, error) {
	listing, err := a.api.GetServer(ctx, id)
	if errors.Is(err, client.ErrNotFound) {
		return models.ServerListing{}, errors.Newf("server %q not found", id)
	}
	if err != nil {
		return models.ServerListing{}, errors.Wrapf(err, "getting server %s", id)
	}
	return listing, nil
}

func renderListing(w io.Writer, l models.ServerListing, viewerId string) {
	header(w, l.Name)
	fmt.Fprintln(w, l.Description)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", l.Id)
	fmt.Fprintf(tw, "Status:\t%s\n", l.Status)
	fmt.Fprintf(tw, "Endpoint:\t%s\n", valueOrDash(l.EndpointUrl))
	fmt.Fprintf(tw, "Protocol:\t%s\n", l.ProtocolVersion)
	fmt.Fprintf(tw, "Tags:\t%s\n", joinTags(l.Tags))
	fmt.Fprintf(tw, "Rating:\t%.1f\n", l.Metrics.Rating)
	fmt.Fprintf(tw, "Users:\t%d\n", l.Metrics.Users)
	fmt.Fprintf(tw, "Uptime:\t%.1f%%\n", l.Metrics.Uptime)
	fmt.Fprintf(tw, "Updated:\t%s\n", l.UpdatedAt.Format("2006-01-02 15:04"))
	_ = tw.Flush()

	if l.IsOwnedBy(viewerId) {
		dimColor.Fprintf(w, "\nYou own this server: mcphub servers edit %s | mcphub servers delete %s\n", l.Id, l.Id)
	}

	if strings.TrimSpace(l.Documentation) != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, l.Documentation)
	}
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// readDocFile reads markdown from a path, "-" meaning stdin
func readDocFile(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), errors.Wrap(err, "reading documentation from stdin")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}
	return string(data), nil
}
