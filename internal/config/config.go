// Package config loads the keypad-scanner daemon configuration from a CUE
// file. Every field has a default, so an empty file (or no file at all)
// describes a 4x3 keypad on the cdev backend.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/adrg/xdg"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/sweeney/keypad-scanner/internal/gpio"
	"github.com/sweeney/keypad-scanner/internal/keypad"
)

//go:embed schema.cue
var schemaCUE []byte

// RelPath is the config file location relative to the XDG config directories.
const RelPath = "keypad-scanner/config.cue"

// Config is the resolved daemon configuration.
type Config struct {
	Layout    keypad.Layout
	Backend   string
	Chip      string
	Poll      time.Duration
	Heartbeat time.Duration
	MQTT      MQTT
	HTTPAddr  string
}

// MQTT holds broker settings.
type MQTT struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// file mirrors the CUE schema.
type file struct {
	Keypad struct {
		Rows []int    `json:"rows"`
		Cols []int    `json:"cols"`
		Keys []string `json:"keys"`
	} `json:"keypad"`
	Backend   string `json:"backend"`
	Chip      string `json:"chip"`
	Poll      string `json:"poll"`
	Heartbeat string `json:"heartbeat"`
	MQTT      struct {
		Broker      string `json:"broker"`
		ClientID    string `json:"client_id"`
		TopicPrefix string `json:"topic_prefix"`
	} `json:"mqtt"`
	HTTP string `json:"http"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	c, err := Parse(nil, "default.cue")
	if err != nil {
		panic(fmt.Sprintf("config: default does not satisfy schema: %v", err))
	}
	return c
}

// DefaultPath returns the first existing config file in the XDG config
// directories, or "" if there is none.
func DefaultPath() string {
	p, err := xdg.SearchConfigFile(RelPath)
	if err != nil {
		return ""
	}
	return p
}

// Load reads and parses the CUE file at path from fs.
func Load(fs billy.Basic, path string) (Config, error) {
	data, err := util.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, path)
}

// LoadOrDefault is Load, falling back to Default when path is empty or the
// file does not exist.
func LoadOrDefault(fs billy.Basic, path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	c, err := Load(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return c, err
}

// Parse validates data against the schema and converts it to a Config.
// filename is only used in error messages.
func Parse(data []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", filename, err)
	}

	v = def.Unify(v)
	if err := v.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate %s: %w", filename, err)
	}

	var f file
	if err := v.Decode(&f); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", filename, err)
	}
	return f.resolve()
}

func (f file) resolve() (Config, error) {
	poll, err := time.ParseDuration(f.Poll)
	if err != nil {
		return Config{}, fmt.Errorf("poll: %w", err)
	}
	if poll <= 0 {
		return Config{}, fmt.Errorf("poll: must be positive, got %v", poll)
	}
	heartbeat, err := time.ParseDuration(f.Heartbeat)
	if err != nil {
		return Config{}, fmt.Errorf("heartbeat: %w", err)
	}

	layout := keypad.Layout{
		RowPins: f.Keypad.Rows,
		ColPins: f.Keypad.Cols,
		Keys:    keypad.KeyRows(f.Keypad.Keys...),
	}
	if err := layout.Validate(); err != nil {
		return Config{}, err
	}

	backend := f.Backend
	if backend == "" {
		backend = gpio.BackendCdev
	}

	return Config{
		Layout:    layout,
		Backend:   backend,
		Chip:      f.Chip,
		Poll:      poll,
		Heartbeat: heartbeat,
		MQTT: MQTT{
			Broker:      f.MQTT.Broker,
			ClientID:    f.MQTT.ClientID,
			TopicPrefix: f.MQTT.TopicPrefix,
		},
		HTTPAddr: f.HTTP,
	}, nil
}
