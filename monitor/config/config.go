package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v2"

	"github.com/healthmonitor/agent/helpers"
	"github.com/healthmonitor/agent/models"
)

const (
	DefaultConfigPath      = "./config/config.ini"
	DefaultLoggingLevel    = "info"
	DefaultSMTPPort        = 587
	DefaultSubjectTemplate = "[Alert] {device_name} {resource_name} threshold exceeded"
	DefaultBodyTemplate    = "Device: {device_name}, {resource_name}: usage is more than {threshold}%%."
)

const (
	SectionGeneral = "general"
	SectionTime    = "time"
	SectionEmail   = "email"
)

type Format string

const (
	FormatINI  Format = "ini"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the parser from the file extension. Anything that is
// not YAML is read as INI.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML
	default:
		return FormatINI
	}
}

var thresholdKeys = map[string]models.ResourceKind{
	"cpu_threshold":        models.ResourceCPU,
	"ram_threshold":        models.ResourceRAM,
	"disk_threshold":       models.ResourceDisk,
	"gpu_threshold":        models.ResourceGPUUtil,
	"gpu_memory_threshold": models.ResourceGPUMem,
	"gpu_temp_threshold":   models.ResourceGPUTemp,
}

var disabledThresholdValues = map[string]bool{
	"":         true,
	"off":      true,
	"disabled": true,
	"none":     true,
	"false":    true,
}

type GeneralConfig struct {
	Thresholds  map[models.ResourceKind]models.Threshold
	Disks       []string
	DeviceName  string `key:"general.device_name" validate:"required"`
	LogLevel    string `key:"general.log_level"`
	LogFile     string `key:"general.log_file"`
	LogFormat   string `key:"general.log_format" validate:"omitempty,oneof=json text"`
	MetricsFile string `key:"general.metrics_file"`
}

type TimeConfig struct {
	CheckFrequency  time.Duration `key:"time.check_frequency" validate:"min=0"`
	EmailRetryDelay time.Duration `key:"time.email_retry_delay" validate:"min=0"`
	AlertCooldown   time.Duration `key:"time.alert_cooldown_time" validate:"min=0"`
}

type SMTPConfig struct {
	Server   string `key:"email.smtp_server" validate:"required"`
	Port     int    `key:"email.smtp_port" validate:"min=1,max=65535"`
	Username string `key:"email.smtp_username" validate:"required"`
	Password string `key:"email.smtp_password" validate:"required"`
	StartTLS bool   `key:"email.starttls"`
}

func (s SMTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Server, s.Port)
}

type EmailConfig struct {
	SMTP            SMTPConfig
	Sender          string `key:"email.sender" validate:"omitempty,email"`
	Recipient       string `key:"email.recipient" validate:"required,email"`
	SubjectTemplate string `key:"email.alert_subject_template" validate:"required"`
	BodyTemplate    string `key:"email.alert_body_template" validate:"required"`
	SendTestEmail   bool   `key:"email.send_test_email"`
}

// From is the envelope sender, the SMTP username unless one is configured.
func (e EmailConfig) From() string {
	if e.Sender != "" {
		return e.Sender
	}
	return e.SMTP.Username
}

// Config is an immutable snapshot. A reload produces a new value instead of
// mutating the one in use.
type Config struct {
	General    GeneralConfig
	Time       TimeConfig
	Email      EmailConfig
	MaxRetries int
}

func (c *Config) GetLogging() *helpers.LoggingConfig {
	return &helpers.LoggingConfig{
		Level:         c.General.LogLevel,
		PlainTextSink: c.General.LogFormat == "text",
		File:          c.General.LogFile,
	}
}

func (c *Config) Threshold(kind models.ResourceKind) models.Threshold {
	return c.General.Thresholds[kind]
}

// ConfiguredKinds lists the kinds that have a threshold, in evaluation order.
func (c *Config) ConfiguredKinds() []models.ResourceKind {
	kinds := []models.ResourceKind{}
	for _, kind := range models.AllResourceKinds {
		if c.Threshold(kind).Present {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Devices returns the devices to sample for kind. Host-wide kinds use the
// device name, disks the configured mounts, and GPUs nil for every device
// present.
func (c *Config) Devices(kind models.ResourceKind) []string {
	switch {
	case kind.HostWide():
		return []string{c.General.DeviceName}
	case kind == models.ResourceDisk:
		return c.General.Disks
	default:
		return nil
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file '%s': %w", models.ErrConfigInvalid, path, err)
	}
	return Parse(data, FormatForPath(path))
}

// Parse decodes and validates a configuration document.
func Parse(data []byte, format Format) (*Config, error) {
	var raw rawConfig
	var err error
	switch format {
	case FormatYAML:
		raw, err = readYAML(data)
	default:
		raw, err = readINI(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfigInvalid, err)
	}

	conf, err := raw.build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfigInvalid, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfigInvalid, err)
	}
	return conf, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("key"); name != "" {
			return name
		}
		return field.Name
	})
	return v
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return fmt.Errorf("Configuration error: %s failed the '%s' check", fe.Field(), validationRule(fe))
		}
		return err
	}
	if c.Time.EmailRetryDelay > models.MaxRetryDelaySecs*time.Second {
		return fmt.Errorf("Configuration error: time.email_retry_delay must not exceed %d seconds", models.MaxRetryDelaySecs)
	}
	if len(c.ConfiguredKinds()) == 0 {
		return fmt.Errorf("Configuration error: no resource threshold is configured in [general]")
	}
	if c.Threshold(models.ResourceDisk).Present && len(c.General.Disks) == 0 {
		return fmt.Errorf("Configuration error: general.disks is empty")
	}
	if _, err := helpers.ParseLogLevel(c.General.LogLevel); err != nil {
		return fmt.Errorf("Configuration error: general.log_level: %w", err)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("Configuration error: max retries is less-equal than 0")
	}
	return nil
}

func validationRule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// rawConfig is section -> key -> value with lower-cased names, the shape
// both file formats decode into.
type rawConfig map[string]map[string]string

func readINI(data []byte) (rawConfig, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:                true,
		IgnoreInlineComment:        true,
		AllowPythonMultilineValues: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ini: %w", err)
	}
	raw := rawConfig{}
	for _, section := range file.Sections() {
		if section.Name() == ini.DefaultSection || strings.EqualFold(section.Name(), ini.DefaultSection) {
			continue
		}
		values := section.KeysHash()
		for key, value := range values {
			values[key] = dedentContinuations(value)
		}
		raw[strings.ToLower(section.Name())] = values
	}
	return raw, nil
}

func readYAML(data []byte) (rawConfig, error) {
	doc := map[string]map[string]interface{}{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	raw := rawConfig{}
	for sectionName, keys := range doc {
		section := map[string]string{}
		for key, value := range keys {
			section[strings.ToLower(key)] = yamlScalar(value)
		}
		raw[strings.ToLower(sectionName)] = section
	}
	return raw, nil
}

func yamlScalar(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []interface{}:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
		return strings.Join(items, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func (r rawConfig) has(section, key string) bool {
	_, ok := r[section][key]
	return ok
}

func (r rawConfig) get(section, key, fallback string) string {
	if v, ok := r[section][key]; ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (r rawConfig) required(section, key string) (string, error) {
	if _, ok := r[section]; !ok {
		return "", fmt.Errorf("Configuration error: section '%s' is missing", section)
	}
	if !r.has(section, key) {
		return "", fmt.Errorf("Configuration error: option '%s' is missing in section '%s'", key, section)
	}
	return r.get(section, key, ""), nil
}

func (r rawConfig) seconds(key string) (time.Duration, error) {
	v, err := r.required(SectionTime, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("Configuration error: %s.%s is not an integer number of seconds: %q", SectionTime, key, v)
	}
	if n < 0 {
		return 0, fmt.Errorf("Configuration error: %s.%s is less than 0", SectionTime, key)
	}
	return time.Duration(n) * time.Second, nil
}

func (r rawConfig) boolean(section, key string, fallback bool) (bool, error) {
	v := r.get(section, key, "")
	if v == "" {
		return fallback, nil
	}
	switch strings.ToLower(v) {
	case "1", "yes", "true", "on":
		return true, nil
	case "0", "no", "false", "off":
		return false, nil
	}
	return false, fmt.Errorf("Configuration error: %s.%s is not a boolean: %q", section, key, v)
}

func (r rawConfig) build() (*Config, error) {
	conf := &Config{MaxRetries: models.MaxDispatchAttempts}

	thresholds, err := r.thresholds()
	if err != nil {
		return nil, err
	}
	conf.General.Thresholds = thresholds
	conf.General.Disks = splitList(r.get(SectionGeneral, "disks", ""))
	if thresholds[models.ResourceDisk].Present && len(conf.General.Disks) == 0 {
		conf.General.Disks = []string{"/"}
	}
	conf.General.DeviceName = r.get(SectionGeneral, "device_name", "")
	if conf.General.DeviceName == "" {
		conf.General.DeviceName = hostname()
	}
	conf.General.LogLevel = strings.ToLower(r.get(SectionGeneral, "log_level", DefaultLoggingLevel))
	conf.General.LogFile = r.get(SectionGeneral, "log_file", "")
	conf.General.LogFormat = strings.ToLower(r.get(SectionGeneral, "log_format", "json"))
	conf.General.MetricsFile = r.get(SectionGeneral, "metrics_file", "")

	if conf.Time.CheckFrequency, err = r.seconds("check_frequency"); err != nil {
		return nil, err
	}
	if conf.Time.EmailRetryDelay, err = r.seconds("email_retry_delay"); err != nil {
		return nil, err
	}
	if conf.Time.AlertCooldown, err = r.seconds("alert_cooldown_time"); err != nil {
		return nil, err
	}

	if err := r.email(&conf.Email); err != nil {
		return nil, err
	}
	return conf, nil
}

func (r rawConfig) thresholds() (map[models.ResourceKind]models.Threshold, error) {
	thresholds := map[models.ResourceKind]models.Threshold{}
	keys := make([]string, 0, len(thresholdKeys))
	for key := range thresholdKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		kind := thresholdKeys[key]
		t, err := ParseThreshold(kind, r.get(SectionGeneral, key, ""))
		if err != nil {
			return nil, fmt.Errorf("Configuration error: %s.%s: %w", SectionGeneral, key, err)
		}
		thresholds[kind] = t
	}
	return thresholds, nil
}

func (r rawConfig) email(e *EmailConfig) error {
	var err error
	if e.SMTP.Server, err = r.required(SectionEmail, "smtp_server"); err != nil {
		return err
	}
	port, err := r.required(SectionEmail, "smtp_port")
	if err != nil {
		return err
	}
	if e.SMTP.Port, err = strconv.Atoi(port); err != nil {
		return fmt.Errorf("Configuration error: %s.smtp_port is not an integer: %q", SectionEmail, port)
	}
	if e.SMTP.Username, err = r.required(SectionEmail, "smtp_username"); err != nil {
		return err
	}
	if e.SMTP.Password, err = r.required(SectionEmail, "smtp_password"); err != nil {
		return err
	}
	if e.SMTP.StartTLS, err = r.boolean(SectionEmail, "starttls", true); err != nil {
		return err
	}
	if e.Recipient, err = r.required(SectionEmail, "recipient"); err != nil {
		return err
	}
	e.Sender = r.get(SectionEmail, "sender", "")
	e.SubjectTemplate = unescapePercent(r.get(SectionEmail, "alert_subject_template", DefaultSubjectTemplate))
	e.BodyTemplate = unescapePercent(r.get(SectionEmail, "alert_body_template", DefaultBodyTemplate))
	if e.SendTestEmail, err = r.boolean(SectionEmail, "send_test_email", true); err != nil {
		return err
	}
	return nil
}

// ParseThreshold reads an optional threshold. Opting out is spelled as an
// empty value or keyword, or as a number no reading can breach: at or above
// 100 for percentage kinds, at or below 0 for disk free space. Temperatures
// have no ceiling and opt out through the keywords only.
func ParseThreshold(kind models.ResourceKind, value string) (models.Threshold, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if disabledThresholdValues[v] {
		return models.NoThreshold, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
	if err != nil {
		return models.NoThreshold, fmt.Errorf("threshold is not numeric: %q", value)
	}
	if kind.Inverse() {
		if f <= 0 {
			return models.NoThreshold, nil
		}
	} else if kind.Unit() == models.UnitPercentage && f >= models.MaxReading {
		return models.NoThreshold, nil
	}
	return models.NewThreshold(f), nil
}

func splitList(s string) []string {
	items := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// dedentContinuations strips the indentation ini keeps on the continuation
// lines of a multi-line value.
func dedentContinuations(value string) string {
	if !strings.Contains(value, "\n") {
		return value
	}
	lines := strings.Split(value, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = strings.TrimLeft(lines[i], " \t")
	}
	return strings.Join(lines, "\n")
}

// unescapePercent turns the configparser-style %% escape into a literal %.
func unescapePercent(s string) string {
	return strings.ReplaceAll(s, "%%", "%")
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	return name
}
