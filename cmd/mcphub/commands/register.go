package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/imyashkale/mcphub/internal/draft"
	"github.com/imyashkale/mcphub/internal/models"
)

// listingFlags are shared by register and edit
type listingFlags struct {
	name        string
	description string
	url         string
	protocol    string
	tags        []string
	status      string
	docFile     string
	noReadme    bool
	json        bool
}

var (
	registerFlags listingFlags
	editFlags     listingFlags
)

func (lf *listingFlags) bind(f *pflag.FlagSet) {
	f.StringVar(&lf.name, "name", "", "display name")
	f.StringVar(&lf.description, "description", "", "short description")
	f.StringVar(&lf.url, "url", "", "endpoint URL, usually the GitHub repository")
	f.StringVar(&lf.protocol, "protocol", models.DefaultProtocolVersion, "MCP protocol version")
	f.StringSliceVar(&lf.tags, "tag", nil, "tag, repeatable")
	f.StringVar(&lf.status, "status", string(models.StatusActive), "active, inactive or deprecated")
	f.StringVar(&lf.docFile, "doc-file", "", "markdown documentation file, - for stdin")
	f.BoolVar(&lf.noReadme, "no-readme", false, "do not fill documentation from the repository README")
	f.BoolVar(&lf.json, "json", false, "Output in JSON format")
}

func init() {
	registerFlags.bind(serversRegisterCmd.Flags())
	editFlags.bind(serversEditCmd.Flags())
	serversCmd.AddCommand(serversRegisterCmd, serversEditCmd)
}

var serversRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new MCP server",
	Long: `Register a new MCP server.

When --url points at a GitHub repository, the README from its main branch
(or master) becomes the documentation. --doc-file always wins over the README.`,
	Example: `  mcphub servers register --name "Weather" \
    --description "Forecasts over MCP" \
    --url https://github.com/octo/weather-mcp --tag weather`,
	Args: cobra.NoArgs,
	RunE: runRegister,
}

func runRegister(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	user, err := a.requireUser(ctx)
	if err != nil {
		return err
	}

	d := draft.NewCreateDraft(user.Id, a.draftDeps(registerFlags.noReadme))
	defer d.Close()

	if err := applyListingFlags(cmd.Flags(), d, &registerFlags, true); err != nil {
		return err
	}
	return saveDraft(cmd, a, d, &registerFlags, "Registered")
}

var serversEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a server you own",
	Long: `Edit a server you own. Only the flags you pass are changed.

Changing --url fetches the README of the new repository into the
documentation unless --no-readme is set.`,
	Example: `  mcphub servers edit 0b6f... --status deprecated
  mcphub servers edit 0b6f... --doc-file README.md`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func runEdit(cmd *cobra.Command, args []string) error {
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
			"only the owner can edit a listing")
	}

	// an edit draft enriches its current endpoint on open, so --no-readme
	// must also cover that first fetch
	d := draft.NewEditDraft(listing, a.draftDeps(editFlags.noReadme))
	defer d.Close()

	if err := applyListingFlags(cmd.Flags(), d, &editFlags, false); err != nil {
		return err
	}
	return saveDraft(cmd, a, d, &editFlags, "Updated")
}

func (a *app) draftDeps(noReadme bool) draft.Deps {
	if noReadme || a.readme == nil {
		return draft.Deps{}
	}
	return draft.Deps{Fetcher: a.readme}
}

// applyListingFlags writes the flags onto d. Defaults apply only when all
// is set; otherwise just the flags the user passed are written.
func applyListingFlags(fs *pflag.FlagSet, d *draft.Draft, lf *listingFlags, all bool) error {
	set := func(name string) bool { return all || fs.Changed(name) }

	if set("name") {
		d.SetName(lf.name)
	}
	if set("description") {
		d.SetDescription(lf.description)
	}
	if set("protocol") {
		d.SetProtocolVersion(lf.protocol)
	}
	if set("status") {
		status := models.ServerStatus(strings.ToLower(lf.status))
		if !status.Valid() {
			return errors.Newf("invalid status %q: want active, inactive or deprecated", lf.status)
		}
		d.SetStatus(status)
	}
	if fs.Changed("tag") {
		tags := models.NormalizeTags(lf.tags)
		if len(tags) == 0 {
			tags = []string{models.DefaultTag}
		}
		d.Apply(models.ServerPatch{Tags: &tags})
	}
	if set("url") {
		d.SetEndpointUrl(lf.url)
	}
	return nil
}

// saveDraft waits for README enrichment, applies --doc-file and commits
func saveDraft(cmd *cobra.Command, a *app, d *draft.Draft, lf *listingFlags, verb string) error {
	out := cmd.OutOrStdout()

	d.Wait()
	enriched := d.Snapshot().ReadmeSuccess

	if lf.docFile != "" {
		doc, err := readDocFile(lf.docFile)
		if err != nil {
			return err
		}
		d.SetDocumentation(doc)
		enriched = false
	}

	stored, err := d.Save(cmd.Context(), a.api)
	if err != nil {
		return errors.Wrap(err, "saving server")
	}

	if lf.json {
		return writeJSON(out, stored.ToResponse())
	}
	printSuccess(out, "%s %s (%s)", verb, stored.Name, stored.Id)
	reportEnrichment(out, enriched, d.Listing().EndpointUrl)
	return nil
}

func reportEnrichment(w io.Writer, enriched bool, url string) {
	if enriched {
		fmt.Fprintf(w, "  documentation filled from the README of %s\n", url)
	}
}
