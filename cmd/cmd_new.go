package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var configTemplates = map[string]string{
	"dev.yml": `app_name: "{{ .AppName }} Development"
host_port: 0.0.0.0:8080
log_level: debug
log_format: simple

watch_shape: true

shape:
  path: shape.yml

database:
  connection_string: mongodb://localhost:27017
  dbname: {{ .AppNameSlug }}_development
  query_timeout: 30s
`,
	"prod.yml": `inherits: dev

app_name: "{{ .AppName }} Production"
production: true
log_level: warn

watch_shape: false
cache_size: 5000

database:
  dbname: {{ .AppNameSlug }}_production
  retry_attempts: 3
  retry_delay: 200ms
`,
	"shape.yml": `# One entry per queryable field, keyed by field name.
# Nested fields are arrays of subdocuments and are unwound before use.
leg:
  type: nested
  this_property_path: legs
status:
  type: string
  parent_path: leg
  this_property_path: legs.status
`,
}

func newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <app-name>",
		Short: "Create a new PipeJin app",
		Args:  cobra.ExactArgs(1),
		Run:   cmdNew,
	}
}

func cmdNew(cmd *cobra.Command, args []string) {
	if err := newApp(afero.NewOsFs(), args[0]); err != nil {
		log.Fatalf("%s", err)
	}
	log.Infof("App initialized: %s", args[0])
}

func newApp(fs afero.Fs, dir string) error {
	slug := strings.ToLower(filepath.Base(dir))
	data := map[string]string{
		"AppName":     cases.Title(language.English).String(strings.ReplaceAll(slug, "_", " ")),
		"AppNameSlug": strings.ReplaceAll(slug, "-", "_"),
	}

	cp := filepath.Join(dir, "config")

	if ok, _ := afero.DirExists(fs, cp); ok {
		return errors.Errorf("config directory already exists: %s", cp)
	}

	if err := fs.MkdirAll(cp, os.ModePerm); err != nil {
		return errors.WithStack(err)
	}

	for name, v := range configTemplates {
		t, err := template.New(name).Parse(v)
		if err != nil {
			return errors.Wrapf(err, "template %s", name)
		}

		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return errors.Wrapf(err, "template %s", name)
		}

		if err := afero.WriteFile(fs, filepath.Join(cp, name), buf.Bytes(), 0o600); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
