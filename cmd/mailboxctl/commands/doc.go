package commands

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed spec_full.md
var specFullMD []byte

var docOut string

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Render the embedded module spec as HTML",
	Long: `Renders the embedded copy of SPEC_FULL.md (the module's stack and
package overview) to HTML using goldmark, so it can be read in a
browser instead of a terminal. Writes to stdout unless --out is given.`,
	RunE: runDoc,
}

func init() {
	docCmd.Flags().StringVar(
		&docOut, "out", "", "write HTML to this file instead of stdout",
	)
}

// markdownToHTML converts markdown to HTML using goldmark.
func markdownToHTML(src []byte) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

func runDoc(cmd *cobra.Command, args []string) error {
	rendered, err := markdownToHTML(specFullMD)
	if err != nil {
		return err
	}

	if docOut == "" {
		fmt.Println(rendered)
		return nil
	}

	return os.WriteFile(docOut, []byte(rendered), 0o644)
}
