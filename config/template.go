package config

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	_ "embed"
)

// DefaultDirPerm is the default permissions used when creating directories.
const DefaultDirPerm = 0o700

var (
	initTemplate *template.Template
	runTemplate  *template.Template
)

func init() {
	var err error
	if initTemplate, err = template.New("initFileTemplate").Parse(defaultInitTemplate); err != nil {
		panic(err)
	}
	if runTemplate, err = template.New("runFileTemplate").Parse(defaultRunTemplate); err != nil {
		panic(err)
	}
}

// RenderInitConfig renders cfg as a commented YAML file.
func RenderInitConfig(cfg *InitConfig) ([]byte, error) {
	return render(initTemplate, cfg)
}

// RenderRunConfig renders cfg as a commented YAML file.
func RenderRunConfig(cfg *RunConfig) ([]byte, error) {
	return render(runTemplate, cfg)
}

func render(tpl *template.Template, cfg any) ([]byte, error) {
	var buffer bytes.Buffer
	if err := tpl.Execute(&buffer, cfg); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", tpl.Name(), err)
	}
	return buffer.Bytes(), nil
}

// WriteConfigFile writes a rendered config to path. It refuses to overwrite
// an existing file.
func WriteConfigFile(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go.
//
//go:embed init.yaml.tpl
var defaultInitTemplate string

//go:embed run.yaml.tpl
var defaultRunTemplate string
