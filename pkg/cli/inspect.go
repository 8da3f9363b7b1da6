package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/df07/go-depthmesh/pkg/core"
	"github.com/df07/go-depthmesh/pkg/export"
)

type inspectFlags struct {
	format string
}

// inspectResult pairs a report with the file it came from
type inspectResult struct {
	File string `json:"file"`
	*export.Report
}

func newInspectCommand(a *app) *cobra.Command {
	flags := &inspectFlags{}

	cmd := &cobra.Command{
		Use:   "inspect [flags] FILE...",
		Short: "Report the contents of DXF, STL or OBJ files",
		Long: `Parse exported files and report vertex and triangle counts and the
bounding box. The format is taken from each file's extension unless --format is given.

Examples:
  depthmesh inspect photo.stl
  depthmesh inspect --json meshes/*.obj`,
		Args: argsAtLeast(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInspect(cmd, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "File format: dxf, stl, obj (default from extension)")
	return cmd
}

func (a *app) runInspect(cmd *cobra.Command, flags *inspectFlags, files []string) error {
	results := make([]inspectResult, 0, len(files))
	for _, file := range files {
		report, err := inspectFile(file, flags.format)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		results = append(results, inspectResult{File: file, Report: report})
	}

	if a.jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"files": results})
	}
	for _, r := range results {
		if err := printReport(cmd.OutOrStdout(), r); err != nil {
			return err
		}
	}
	return nil
}

func inspectFile(file, formatName string) (*export.Report, error) {
	if formatName == "" {
		formatName = filepath.Ext(file)
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, core.WrapError(core.StageInspect, core.ErrExportIO, err, "opening %s", file)
	}
	defer f.Close()
	return export.Inspect(f, format)
}

func printReport(w io.Writer, r inspectResult) error {
	format := r.Format
	if r.Encoding != "" {
		format += " (" + r.Encoding + ")"
	}
	_, err := fmt.Fprintf(w, "%s: %s, %d vertices, %d faces, %d triangles, %d bytes\n  bounds %v .. %v\n",
		r.File, format, r.Vertices, r.Faces, r.Triangles, r.Bytes, r.Min, r.Max)
	return err
}
