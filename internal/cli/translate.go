package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dbtbridge/internal/dbtcli"
	"github.com/roach88/dbtbridge/internal/ir"
	"github.com/roach88/dbtbridge/internal/reconcile"
	"github.com/roach88/dbtbridge/internal/translator"
)

// TranslateOptions holds flags for the translate command.
type TranslateOptions struct {
	*RootOptions
}

// TranslateResult is the JSON payload of the translate command.
type TranslateResult struct {
	Manifest     string                   `json:"manifest"`
	Translations []translator.Translation `json:"translations"`
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranslateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "translate [manifest.json]",
		Short: "Show the asset key, group and metadata of every model",
		Long: `Translate a dbt manifest into asset definitions.

Every model, seed and snapshot gets an asset key, a group and its
definition metadata. Tests are skipped. Two nodes deriving the same asset
key are an error.

Without an argument the manifest of the selected deployment's project is
used; when it does not exist yet and the deployment allows it, dbt parse
is run first.

Exit codes:
  0 - Manifest translated
  1 - Duplicate asset keys
  2 - Command error (missing manifest, bad config)

Examples:
  dbtbridge translate target/manifest.json
  dbtbridge translate --config ./deploy --deployment prod
  dbtbridge translate target/manifest.json --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(opts, args, cmd)
		},
	}

	return cmd
}

func runTranslate(opts *TranslateOptions, args []string, cmd *cobra.Command) error {
	cfg, d, err := loadDeployment(opts.RootOptions)
	if err != nil {
		return err
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		project, err := newProject(d)
		if err != nil {
			return err
		}
		if d.DBT.Prepare {
			if err := project.Prepare(commandContext(cmd)); err != nil {
				return WrapExitError(ExitCommandError, "failed to prepare manifest", err)
			}
		}
		path = project.ManifestPath()
	}

	out := opts.formatter(cmd)
	out.VerboseLog("Loading manifest %s", path)

	manifest, err := dbtcli.LoadManifest(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load manifest", err)
	}
	if _, err := reconcile.BuildLookups(manifest, nil); err != nil {
		return out.Fail(ExitFailure, "asset graph is invalid", err, nil)
	}

	result := TranslateResult{
		Manifest:     path,
		Translations: translator.TranslateManifest(cfg.Translator, manifest),
	}
	return out.Render(result, func(w io.Writer) {
		writeTranslations(w, result.Translations)
	})
}

func writeTranslations(w io.Writer, translations []translator.Translation) {
	if len(translations) == 0 {
		fmt.Fprintln(w, "No asset nodes found.")
		return
	}
	for _, tr := range translations {
		fmt.Fprintf(w, "%s\n", tr.UniqueID)
		fmt.Fprintf(w, "  asset_key: %s\n", tr.AssetKey)
		fmt.Fprintf(w, "  group:     %s\n", tr.Group)
		fmt.Fprintf(w, "  metadata:  %s\n", canonical(tr.Metadata))
	}
	fmt.Fprintf(w, "\n%d assets\n", len(translations))
}

// canonical renders a value as canonical JSON for text output.
func canonical(v ir.Value) string {
	if v == nil {
		return "{}"
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
