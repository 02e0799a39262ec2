package config

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SchemaConfig maps the externally owned table and column names the
// service reads and writes. The membership table belongs to a foreign
// schema, so every identifier can be overridden.
type SchemaConfig struct {
	CadUserTable     string `mapstructure:"cadUserTable"`
	UserNameColumn   string `mapstructure:"userNameColumn"`
	DomainNameColumn string `mapstructure:"domainNameColumn"`
	LastPingColumn   string `mapstructure:"lastPingColumn"`

	MemberTable       string `mapstructure:"memberTable"`
	MemberLoginColumn string `mapstructure:"memberLoginColumn"`
	MemberOrgColumn   string `mapstructure:"memberOrgColumn"`

	UsageTable         string `mapstructure:"usageTable"`
	UsageDateColumn    string `mapstructure:"usageDateColumn"`
	UsageAppColumn     string `mapstructure:"usageAppColumn"`
	UsageVersionColumn string `mapstructure:"usageVersionColumn"`
	UsageMinutesColumn string `mapstructure:"usageMinutesColumn"`
	UsageOrgColumn     string `mapstructure:"usageOrgColumn"`

	ApplicationsTable string `mapstructure:"applicationsTable"`
	AppNameColumn     string `mapstructure:"appNameColumn"`
}

func DefaultSchemaConfig() SchemaConfig {
	return SchemaConfig{
		CadUserTable:     "cad_users",
		UserNameColumn:   "user_name",
		DomainNameColumn: "domain_name",
		LastPingColumn:   "last_ping",

		MemberTable:       "org_members",
		MemberLoginColumn: "login_name",
		MemberOrgColumn:   "org_fid",

		UsageTable:         "cad_usage",
		UsageDateColumn:    "usage_date",
		UsageAppColumn:     "app_fid",
		UsageVersionColumn: "app_version",
		UsageMinutesColumn: "minutes",
		UsageOrgColumn:     "org_fid",

		ApplicationsTable: "cad_applications",
		AppNameColumn:     "app_name",
	}
}

// SchemaHolder serves the current schema mapping and follows file changes.
type SchemaHolder struct {
	current atomic.Value // holds SchemaConfig
}

// NewSchemaHolder reads schema.yml and keeps the mapping hot-reloadable.
// A missing file means default names.
func NewSchemaHolder() (*SchemaHolder, error) {
	v := viper.New()

	v.SetConfigName("schema")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/cadusage")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CADUSAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setSchemaDefaults(v, DefaultSchemaConfig())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg SchemaConfig
	if err := v.UnmarshalKey("schema", &cfg); err != nil {
		return nil, err
	}
	if err := validateSchemaConfig(cfg); err != nil {
		return nil, err
	}

	holder := &SchemaHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SchemaConfig
		if err := v.UnmarshalKey("schema", &updated); err != nil {
			log.Printf("[schema-config] reload failed: %v", err)
			return
		}
		if err := validateSchemaConfig(updated); err != nil {
			log.Printf("[schema-config] invalid mapping ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[schema-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SchemaHolder) Get() SchemaConfig {
	return h.current.Load().(SchemaConfig)
}

// NewStaticSchemaHolder wraps a fixed mapping, bypassing the config file.
func NewStaticSchemaHolder(cfg SchemaConfig) *SchemaHolder {
	holder := &SchemaHolder{}
	holder.current.Store(cfg)
	return holder
}

func setSchemaDefaults(v *viper.Viper, defaults SchemaConfig) {
	v.SetDefault("schema.cadUserTable", defaults.CadUserTable)
	v.SetDefault("schema.userNameColumn", defaults.UserNameColumn)
	v.SetDefault("schema.domainNameColumn", defaults.DomainNameColumn)
	v.SetDefault("schema.lastPingColumn", defaults.LastPingColumn)
	v.SetDefault("schema.memberTable", defaults.MemberTable)
	v.SetDefault("schema.memberLoginColumn", defaults.MemberLoginColumn)
	v.SetDefault("schema.memberOrgColumn", defaults.MemberOrgColumn)
	v.SetDefault("schema.usageTable", defaults.UsageTable)
	v.SetDefault("schema.usageDateColumn", defaults.UsageDateColumn)
	v.SetDefault("schema.usageAppColumn", defaults.UsageAppColumn)
	v.SetDefault("schema.usageVersionColumn", defaults.UsageVersionColumn)
	v.SetDefault("schema.usageMinutesColumn", defaults.UsageMinutesColumn)
	v.SetDefault("schema.usageOrgColumn", defaults.UsageOrgColumn)
	v.SetDefault("schema.applicationsTable", defaults.ApplicationsTable)
	v.SetDefault("schema.appNameColumn", defaults.AppNameColumn)
}

// identifiers end up interpolated into SQL text, so they are restricted
// to plain (optionally schema-qualified) names
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

func validateSchemaConfig(cfg SchemaConfig) error {
	fields := map[string]string{
		"cadUserTable":       cfg.CadUserTable,
		"userNameColumn":     cfg.UserNameColumn,
		"domainNameColumn":   cfg.DomainNameColumn,
		"lastPingColumn":     cfg.LastPingColumn,
		"memberTable":        cfg.MemberTable,
		"memberLoginColumn":  cfg.MemberLoginColumn,
		"memberOrgColumn":    cfg.MemberOrgColumn,
		"usageTable":         cfg.UsageTable,
		"usageDateColumn":    cfg.UsageDateColumn,
		"usageAppColumn":     cfg.UsageAppColumn,
		"usageVersionColumn": cfg.UsageVersionColumn,
		"usageMinutesColumn": cfg.UsageMinutesColumn,
		"usageOrgColumn":     cfg.UsageOrgColumn,
		"applicationsTable":  cfg.ApplicationsTable,
		"appNameColumn":      cfg.AppNameColumn,
	}
	for name, value := range fields {
		if !identifierPattern.MatchString(strings.TrimSpace(value)) {
			return fmt.Errorf("schema.%s: invalid identifier %q", name, value)
		}
	}
	return nil
}
