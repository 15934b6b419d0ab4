package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"

	"github.com/imyashkale/mcphub/internal/client"
	"github.com/imyashkale/mcphub/internal/draft"
)

var (
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	headerColor  = color.New(color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

func printSuccess(w io.Writer, format string, args ...any) {
	successColor.Fprintf(w, "✓ "+format+"\n", args...)
}

func printWarning(w io.Writer, format string, args ...any) {
	warnColor.Fprintf(w, "! "+format+"\n", args...)
}

// printError writes err, its hints and any per-field messages
func printError(w io.Writer, err error) {
	errorColor.Fprintf(w, "Error: %s\n", err)

	for _, hint := range errors.GetAllHints(err) {
		dimColor.Fprintf(w, "  hint: %s\n", hint)
	}

	fields := fieldErrors(err)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		errorColor.Fprintf(w, "  %s: %s\n", k, fields[k])
	}
}

func fieldErrors(err error) map[string]string {
	var validation *draft.ValidationError
	if errors.As(err, &validation) {
		return validation.Fields
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.FieldErrors()
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encoding JSON")
}

// truncate shortens a string to maxLen characters, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return "-"
	}
	return strings.Join(tags, ",")
}

func header(w io.Writer, title string) {
	headerColor.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("─", len([]rune(title))))
}
