// Scheduler configuration.
//
// The configuration is loaded from a YAML file, with the following
// structure:
//
//  scheduler_config:
//    unixsocketpath: /tmp/sched.socket
//    scheduler: fifo
//    computer_interrupt: get_progress
//    computer_required_applications: 0
//    executor_idle_reschedule: true
//    task_rununtil: progress_suspend
//    resource_taskendhook: /usr/local/bin/reset-device.sh
//    shutdown_max_wait: 5s
//    log_config:
//      ...
//    measure_config:
//      ...
//  resources:
//    - name: cpu0
//      ...
//
// The "scheduler_config" section maps to the SchedulerConfig structure
// below. The "resources" section is a free-form list, decoded separately
// so algorithm-specific resource attributes don't have to be known here.

package schedcore

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SCHEDULER_CONFIG_SECTION_NAME = "scheduler_config"
	RESOURCES_SECTION_NAME        = "resources"

	SCHEDULER_CONFIG_UNIX_SOCKET_PATH_DEFAULT           = "/tmp/sched.socket"
	SCHEDULER_CONFIG_ALGORITHM_DEFAULT                  = "fifo"
	SCHEDULER_CONFIG_COMPUTER_INTERRUPT_DEFAULT         = "get_progress"
	SCHEDULER_CONFIG_COMPUTER_REQUIRED_APPLICATIONS_DEFAULT = 0
	SCHEDULER_CONFIG_EXECUTOR_IDLE_RESCHEDULE_DEFAULT   = true
	SCHEDULER_CONFIG_TASK_RUNUNTIL_DEFAULT              = "progress_suspend"
	SCHEDULER_CONFIG_SHUTDOWN_MAX_WAIT_DEFAULT          = 5 * time.Second

	ENV_SCHED_CONFIG = "SCHED_CONFIG"
	ENV_SCHED_SOCKET = "SCHED_SOCKET"
	ENV_SCHED_SIMFILE = "SCHED_SIMFILE"

	DEFAULT_CONFIG_FILE = "config.yml"
)

// MeasureConfig controls the Measurement Collector (C10).
type MeasureConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SamplingPeriod time.Duration `yaml:"sampling_period"`
}

func DefaultMeasureConfig() *MeasureConfig {
	return &MeasureConfig{
		Enabled:        false,
		SamplingPeriod: 5 * time.Second,
	}
}

// ResourceConfig describes one entry of the top-level "resources" list.
type ResourceConfig struct {
	Name               string `yaml:"name"`
	RetryEndHookOnIdle bool   `yaml:"retry_endhook_on_idle"`
}

// SchedulerConfig is the "scheduler_config" document section.
type SchedulerConfig struct {
	UnixSocketPath                string `yaml:"unixsocketpath"`
	Algorithm                     string `yaml:"scheduler"`
	ComputerInterrupt             string `yaml:"computer_interrupt"`
	ComputerRequiredApplications int    `yaml:"computer_required_applications"`
	ExecutorIdleReschedule       bool   `yaml:"executor_idle_reschedule"`
	TaskRunUntil                  string `yaml:"task_rununtil"`
	ResourceTaskEndHook           string `yaml:"resource_taskendhook"`

	ShutdownMaxWait time.Duration `yaml:"shutdown_max_wait"`

	LoggerConfig  *LoggerConfig  `yaml:"log_config"`
	MeasureConfig *MeasureConfig `yaml:"measure_config"`
}

func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		UnixSocketPath:                SCHEDULER_CONFIG_UNIX_SOCKET_PATH_DEFAULT,
		Algorithm:                     SCHEDULER_CONFIG_ALGORITHM_DEFAULT,
		ComputerInterrupt:             SCHEDULER_CONFIG_COMPUTER_INTERRUPT_DEFAULT,
		ComputerRequiredApplications: SCHEDULER_CONFIG_COMPUTER_REQUIRED_APPLICATIONS_DEFAULT,
		ExecutorIdleReschedule:       SCHEDULER_CONFIG_EXECUTOR_IDLE_RESCHEDULE_DEFAULT,
		TaskRunUntil:                  SCHEDULER_CONFIG_TASK_RUNUNTIL_DEFAULT,
		ShutdownMaxWait:               SCHEDULER_CONFIG_SHUTDOWN_MAX_WAIT_DEFAULT,
		LoggerConfig:                  DefaultLoggerConfig(),
		MeasureConfig:                 DefaultMeasureConfig(),
	}
}

// LoadConfig loads the configuration from the specified YAML file (or a
// pre-read buffer, for testing): the "scheduler_config" section is decoded
// into a *SchedulerConfig, the "resources" section into a []ResourceConfig.
func LoadConfig(cfgFile string, buf []byte) (*SchedulerConfig, []ResourceConfig, error) {
	if buf == nil {
		f, err := os.Open(cfgFile)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		buf, err = io.ReadAll(f)
		if err != nil {
			return nil, nil, fmt.Errorf("file: %q: %v", cfgFile, err)
		}
	}

	docNode := yaml.Node{}
	if err := yaml.Unmarshal(buf, &docNode); err != nil {
		return nil, nil, fmt.Errorf("file: %q: %v", cfgFile, err)
	}

	schedConfig := DefaultSchedulerConfig()
	var resources []ResourceConfig

	if docNode.Kind == yaml.DocumentNode && len(docNode.Content) > 0 {
		rootNode := docNode.Content[0]
		if rootNode.Kind != yaml.MappingNode {
			return nil, nil, fmt.Errorf("file: %q: invalid YAML root node %q", cfgFile, rootNode.Tag)
		}
		var toCfg any
		for _, n := range rootNode.Content {
			if n.Kind == yaml.ScalarNode {
				switch n.Value {
				case SCHEDULER_CONFIG_SECTION_NAME:
					toCfg = schedConfig
				case RESOURCES_SECTION_NAME:
					toCfg = &resources
				default:
					toCfg = nil
				}
				continue
			}
			if toCfg != nil {
				if err := n.Decode(toCfg); err != nil {
					return nil, nil, fmt.Errorf("file: %q: %v", cfgFile, err)
				}
			}
			toCfg = nil
		}
	}

	return schedConfig, resources, nil
}

// ResolveSocketPath applies the env-var / config precedence:
// SCHED_SOCKET overrides the config default only when unixsocketpath
// was left at its built-in default; an explicit config value always wins
// over the env var.
func ResolveSocketPath(cfg *SchedulerConfig) string {
	if cfg.UnixSocketPath != "" && cfg.UnixSocketPath != SCHEDULER_CONFIG_UNIX_SOCKET_PATH_DEFAULT {
		return cfg.UnixSocketPath
	}
	if envPath := os.Getenv(ENV_SCHED_SOCKET); envPath != "" {
		return envPath
	}
	return cfg.UnixSocketPath
}

// ConfigFilePath resolves SCHED_CONFIG with the documented default.
func ConfigFilePath() string {
	if p := os.Getenv(ENV_SCHED_CONFIG); p != "" {
		return p
	}
	return DEFAULT_CONFIG_FILE
}
