// Package cmd: generate command.
// Runs the pipeline on one source and writes the result:
// retrieve → parse → analyze → structure → generate → refine → render.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/output"
	"github.com/gaurav-prasanna/tutorialpipe/core/render"
	"github.com/gaurav-prasanna/tutorialpipe/core/workflow"
)

// Flag variables.
var (
	flagOutput string
	flagJSON   bool
	flagPDF    bool
	flagStage  string
)

var generateCmd = &cobra.Command{
	Use:   "generate <url-or-path>",
	Short: "Generate a tutorial from a PDF or web page",
	Long: `Generate retrieves a PDF or web page and turns it into a Markdown tutorial.
Markdown is written to stdout unless --output is given.

Examples:
  tutorialpipe generate https://example.com/guide
  tutorialpipe generate ./manual.pdf -o tutorial.md
  tutorialpipe generate https://example.com/guide --stage outline --json
  tutorialpipe generate ./manual.pdf --pdf -o tutorial.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Write to this file instead of stdout")
	generateCmd.Flags().BoolVar(&flagJSON, "json", false, "Output {outline, markdown, insights} as JSON")
	generateCmd.Flags().BoolVar(&flagPDF, "pdf", false, "Render the result as a PDF")
	generateCmd.Flags().StringVar(&flagStage, "stage", "full", "Last stage to run: outline, draft or full")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	source := args[0]

	renderer, err := selectRenderer()
	if err != nil {
		return err
	}
	target, err := workflow.ParseTarget(flagStage)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: cleanup: %v\n", cerr)
		}
	}()

	res, err := p.workflow.Run(ctx, source, target)
	if err != nil {
		return err
	}
	if status := res.Status(); status.Degraded() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: result status is %s\n", status)
	}

	data, err := renderer.Render(res)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return writeResult(cmd, source, data, renderer.Extension())
}

// writeResult writes to --output, or to stdout for text formats. A PDF
// without --output is written next to the working directory under a name
// derived from the source.
func writeResult(cmd *cobra.Command, source string, data []byte, ext string) error {
	if flagOutput == "" && ext != ".pdf" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	writer, err := output.New("")
	if err != nil {
		return fmt.Errorf("initializing output writer: %w", err)
	}
	var path string
	if flagOutput != "" {
		path, err = writer.WriteFile(flagOutput, data)
	} else {
		path, err = writer.WriteFor(source, data, ext)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Written: %s\n", path)
	return nil
}

// selectRenderer creates the Renderer chosen by the format flags.
func selectRenderer() (core.Renderer, error) {
	switch {
	case flagJSON && flagPDF:
		return nil, fmt.Errorf("%w: --json and --pdf are mutually exclusive", core.ErrInvalidInput)
	case flagJSON:
		return render.NewJSONRenderer(), nil
	case flagPDF:
		return render.NewPDFRenderer(), nil
	default:
		return render.NewMarkdownRenderer(), nil
	}
}

// runContext is the context used when a command is executed without one.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
