package node

import (
	"os"
	"path/filepath"
	"time"

	"go.dedis.ch/contest/cli"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// ConfigFile is the name of the optional file of the config folder that
// provides the values of the flags left empty.
const ConfigFile = "config.yaml"

// LoadFlags returns the flags backed by the config file of the folder, if it
// exists. A flag set on the command line or through its environment variable
// has precedence over the file.
func LoadFlags(flags cli.Flags, dir string) (cli.Flags, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if os.IsNotExist(err) {
		return flags, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to read config: %v", err)
	}

	values := make(map[string]interface{})

	err = yaml.Unmarshal(data, &values)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse config: %v", err)
	}

	return fileFlags{Flags: flags, values: values}, nil
}

// fileFlags falls back to the values of a config file.
//
// - implements cli.Flags
type fileFlags struct {
	cli.Flags

	values map[string]interface{}
}

// String implements cli.Flags.
func (f fileFlags) String(name string) string {
	value := f.Flags.String(name)
	if value != "" {
		return value
	}

	text, _ := f.values[name].(string)

	return text
}

// Path implements cli.Flags.
func (f fileFlags) Path(name string) string {
	value := f.Flags.Path(name)
	if value != "" {
		return value
	}

	text, _ := f.values[name].(string)

	return text
}

// Duration implements cli.Flags. The file expresses durations like "10s".
func (f fileFlags) Duration(name string) time.Duration {
	value := f.Flags.Duration(name)
	if value != 0 {
		return value
	}

	text, _ := f.values[name].(string)

	d, err := time.ParseDuration(text)
	if err != nil {
		return 0
	}

	return d
}

// Int implements cli.Flags.
func (f fileFlags) Int(name string) int {
	value := f.Flags.Int(name)
	if value != 0 {
		return value
	}

	n, _ := f.values[name].(int)

	return n
}

// Bool implements cli.Flags.
func (f fileFlags) Bool(name string) bool {
	if f.Flags.Bool(name) {
		return true
	}

	b, _ := f.values[name].(bool)

	return b
}

// StringSlice implements cli.Flags.
func (f fileFlags) StringSlice(name string) []string {
	value := f.Flags.StringSlice(name)
	if len(value) > 0 {
		return value
	}

	list, ok := f.values[name].([]interface{})
	if !ok {
		return nil
	}

	res := make([]string, 0, len(list))
	for _, item := range list {
		text, ok := item.(string)
		if ok {
			res = append(res, text)
		}
	}

	return res
}
