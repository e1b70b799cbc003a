package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "taskboard"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage taskboard configuration.

Running bare 'taskboard config' is the same as 'taskboard config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# taskboard configuration
# See: taskboard config show (for effective values and sources)

# PID and log files of the background server (default: ~/.config/taskboard)
# state_dir: {{ .StateDir }}

# Directory holding tasks.json, repos.json and students/
data_dir: "{{ .DataDir }}"

# Directory holding <task id>/agent.log and <task id>/spec.md
tasks_dir: "{{ .TasksDir }}"

# HTTP port for 'taskboard serve'
port: {{ .Port }}

# File watching
watch:
  # How often to retry watching a directory that does not exist yet
  retry_interval: {{ .RetryInterval }}
`

type configTemplateData struct {
	StateDir      string
	DataDir       string
	TasksDir      string
	Port          int
	RetryInterval time.Duration
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:      viper.GetString("state_dir"),
		DataDir:       viper.GetString("data_dir"),
		TasksDir:      viper.GetString("tasks_dir"),
		Port:          viper.GetInt("port"),
		RetryInterval: viper.GetDuration("watch.retry_interval"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

type keyKind int

const (
	kindPath keyKind = iota
	kindInt
	kindDuration
)

// configKey is one setting listed by 'config show'.
type configKey struct {
	Key  string
	Kind keyKind
}

var configKeys = []configKey{
	{Key: "state_dir", Kind: kindPath},
	{Key: "data_dir", Kind: kindPath},
	{Key: "tasks_dir", Kind: kindPath},
	{Key: "port", Kind: kindInt},
	{Key: "watch.retry_interval", Kind: kindDuration},
}

// envVar is the variable viper binds to the key.
func (k configKey) envVar() string {
	return "TASKBOARD_" + strings.ToUpper(strings.ReplaceAll(k.Key, ".", "_"))
}

// display formats the effective value. Directories are shown absolute
// because relative ones depend on where the server is started.
func (k configKey) display() string {
	switch k.Kind {
	case kindPath:
		p := viper.GetString(k.Key)
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	case kindDuration:
		return viper.GetDuration(k.Key).String()
	default:
		return strconv.Itoa(viper.GetInt(k.Key))
	}
}

// checkConfig reports settings the server cannot run with.
func checkConfig() error {
	var errs []error
	if p := viper.GetInt("port"); p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535", p))
	}
	if d := viper.GetDuration("watch.retry_interval"); d <= 0 {
		errs = append(errs, fmt.Errorf("watch.retry_interval must be a positive duration, got %q",
			viper.GetString("watch.retry_interval")))
	}
	return errors.Join(errs...)
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	table := ui.Table([]string{"Key", "Value", "Source"})
	for _, k := range configKeys {
		table.Append([]string{k.Key, k.display(), detectSource(k, fileValues)})
	}
	if err := table.Render(); err != nil {
		return err
	}

	if err := checkConfig(); err != nil {
		fmt.Fprintln(ui.Out)
		ui.Warning("%v", err)
	}
	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource reports where the effective value of k comes from.
func detectSource(k configKey, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(k.envVar()); ok {
		return "env " + k.envVar()
	}
	if fileValues[k.Key] {
		return "file"
	}
	return "default"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'taskboard config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
