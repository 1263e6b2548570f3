package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dosco/pipejin/core"
	"github.com/dosco/pipejin/mongodriver"
	"github.com/dosco/pipejin/serv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// shapeCmd creates the shape command
func shapeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "shape",
		Short: "Document shape commands",
	}

	inferCmd := &cobra.Command{
		Use:   "infer <collection>",
		Short: "Infer a shape file by sampling documents from a collection",
		Long: `Sample documents from the collection and print a shape description.

Arrays of subdocuments become nested fields named after the singular form
of the array key. Review the result before using it, sampling cannot see
fields that are missing from every sampled document.`,
		Args: cobra.ExactArgs(1),
		Run:  cmdShapeInfer,
	}
	inferCmd.Flags().Int("sample", mongodriver.DefaultSampleSize, "number of documents to sample")
	inferCmd.Flags().String("output", "", "write the shape to a file instead of stdout")
	c.AddCommand(inferCmd)

	checkCmd := &cobra.Command{
		Use:   "check <shape.yml>",
		Short: "Validate a shape file and list its fields",
		Args:  cobra.ExactArgs(1),
		Run:   cmdShapeCheck,
	}
	c.AddCommand(checkCmd)

	return c
}

func cmdShapeInfer(cmd *cobra.Command, args []string) {
	setup(cpath)

	sample, _ := cmd.Flags().GetInt("sample")
	output, _ := cmd.Flags().GetString("output")

	client, err := serv.NewDB(conf, conf.AppName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %s", err)
	}
	defer client.Disconnect(context.Background()) //nolint:errcheck

	shape, err := mongodriver.InferShape(context.Background(),
		client.Database(conf.DB.DBName), args[0], sample)
	if err != nil {
		log.Fatalf("Failed to infer shape: %s", err)
	}

	if output == "" {
		if err := writeShape(os.Stdout, shape); err != nil {
			log.Fatalf("%s", err)
		}
		return
	}

	f, err := os.Create(output)
	if err != nil {
		log.Fatalf("%s", err)
	}
	defer f.Close() //nolint:errcheck

	if err := writeShape(f, shape); err != nil {
		log.Fatalf("%s", err)
	}
	log.Infof("Inferred %d fields from '%s': %s", shape.Len(), args[0], output)
}

func cmdShapeCheck(cmd *cobra.Command, args []string) {
	if err := checkShape(afero.NewOsFs(), args[0], os.Stdout); err != nil {
		log.Fatalf("%s", err)
	}
}

func writeShape(w io.Writer, shape *core.Shape) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(shape); err != nil {
		return errors.Wrap(err, "encoding shape")
	}
	return errors.WithStack(enc.Close())
}

func checkShape(fs afero.Fs, path string, w io.Writer) error {
	shape, err := core.NewFileShapeProvider(fs, path).LoadShape(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprint(w, shape.String())
	fmt.Fprintf(w, "%d fields, hash %x\n", shape.Len(), shape.Hash())
	return nil
}
