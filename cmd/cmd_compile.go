package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/dosco/pipejin/core"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	shapeFile string
	indent    bool
)

func compileCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "compile [payload.json]",
		Short: "Compile a query payload into an aggregation pipeline",
		Long: `Compile a query payload into a MongoDB aggregation pipeline and print
it as JSON. The payload is read from the file argument or from stdin.`,
		Args: cobra.MaximumNArgs(1),
		Run:  cmdCompile,
	}
	c.Flags().StringVar(&shapeFile, "shape", "shape.yml", "path to the shape file")
	c.Flags().BoolVar(&indent, "indent", true, "indent the output")
	return c
}

func cmdCompile(cmd *cobra.Command, args []string) {
	var in io.Reader = os.Stdin
	if len(args) != 0 {
		f, err := os.Open(args[0])
		if err != nil {
			log.Fatalf("%s", err)
		}
		defer f.Close() //nolint:errcheck
		in = f
	}

	if err := compile(afero.NewOsFs(), shapeFile, in, os.Stdout, indent); err != nil {
		log.Fatalf("%s", err)
	}
}

func compile(fs afero.Fs, shapePath string, in io.Reader, out io.Writer, indent bool) error {
	payload, err := io.ReadAll(in)
	if err != nil {
		return errors.Wrap(err, "reading payload")
	}

	conf := &core.Config{DisableCache: true}
	pj, err := core.NewEngine(conf, core.NewFileShapeProvider(fs, shapePath))
	if err != nil {
		return errors.Wrapf(err, "loading shape %s", shapePath)
	}
	defer pj.Close()

	c, err := pj.Compile(payload)
	if err != nil {
		return err
	}

	js, err := c.JSON()
	if err != nil {
		return errors.Wrap(err, "rendering pipeline")
	}

	if indent {
		var buf bytes.Buffer
		if err := json.Indent(&buf, js, "", "  "); err != nil {
			return errors.WithStack(err)
		}
		js = buf.Bytes()
	}

	if _, err := out.Write(append(js, '\n')); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
