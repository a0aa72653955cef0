package providers

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/pratik-mahalle/farmlink/internal/pkg/validator"
)

// DefaultTransientStatuses are retried on a later call when a provider does not configure its own
var DefaultTransientStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Catalog is the set of farm-data providers the service can connect to
type Catalog struct {
	Providers []*ProviderConfig `mapstructure:"providers" validate:"required,min=1,dive"`

	byID map[string]*ProviderConfig
}

// ProviderConfig describes one OAuth2 farm-data provider
type ProviderConfig struct {
	ID              string   `mapstructure:"id" validate:"required,slug"`
	Name            string   `mapstructure:"name"`
	BaseURL         string   `mapstructure:"base_url" validate:"required,http_url"`
	AuthURL         string   `mapstructure:"auth_url" validate:"omitempty,http_url"`
	TokenURL        string   `mapstructure:"token_url" validate:"required,http_url"`
	ClientID        string   `mapstructure:"client_id" validate:"required"`
	ClientIDEnv     string   `mapstructure:"client_id_env"`
	ClientSecret    string   `mapstructure:"client_secret"`
	ClientSecretEnv string   `mapstructure:"client_secret_env"`
	RedirectURL     string   `mapstructure:"redirect_url" validate:"omitempty,http_url"`
	Scopes          []string `mapstructure:"scopes"`
	// Accept overrides the Accept header sent to capability endpoints
	Accept     string           `mapstructure:"accept"`
	Classifier ClassifierRules  `mapstructure:"classifier"`
	Endpoints  []EndpointConfig `mapstructure:"endpoints" validate:"unique=Name,dive"`
}

// ClassifierRules tell the error classifier how a provider reports failures
type ClassifierRules struct {
	RCAWarningHeader  string   `mapstructure:"rca_warning_header"`
	RCALocationHeader string   `mapstructure:"rca_location_header"`
	ScopeMarkers      []string `mapstructure:"scope_markers"`
	ConnectionMarkers []string `mapstructure:"connection_markers"`
	TransientStatuses []int    `mapstructure:"transient_statuses" validate:"dive,gte=400,lte=599"`
}

// EndpointConfig is one capability a connection is probed against
type EndpointConfig struct {
	Name   string `mapstructure:"name" validate:"required,slug"`
	Method string `mapstructure:"method" validate:"omitempty,oneof=GET POST"`
	Path   string `mapstructure:"path" validate:"required,startswith=/"`
	// ItemsField names the array inside an object response, e.g. "values"
	ItemsField    string `mapstructure:"items_field"`
	RequiredScope string `mapstructure:"required_scope"`
	// Body is the JSON request body for POST endpoints
	Body string `mapstructure:"body"`
	// Sample is JSON returned by the sample data fallback policy
	Sample string `mapstructure:"sample"`
}

// LoadCatalog reads and validates a provider catalog file (yaml, json or toml).
func LoadCatalog(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read provider catalog %s: %w", path, err)
	}
	return decodeCatalog(v)
}

// ParseCatalog reads a YAML catalog from memory.
func ParseCatalog(data []byte) (*Catalog, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse provider catalog: %w", err)
	}
	return decodeCatalog(v)
}

// NewCatalog builds a catalog from already constructed providers.
func NewCatalog(providers ...*ProviderConfig) (*Catalog, error) {
	c := &Catalog{Providers: providers}
	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeCatalog(v *viper.Viper) (*Catalog, error) {
	var c Catalog
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode provider catalog: %w", err)
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) init() error {
	for _, p := range c.Providers {
		if p != nil {
			p.applyDefaults()
		}
	}

	if errs := validator.Validate(c); len(errs) > 0 {
		return fmt.Errorf("invalid provider catalog: %s", validator.Summarize(errs))
	}

	c.byID = make(map[string]*ProviderConfig, len(c.Providers))
	for _, p := range c.Providers {
		if _, dup := c.byID[p.ID]; dup {
			return fmt.Errorf("invalid provider catalog: duplicate provider id %s", p.ID)
		}
		if p.ClientSecret == "" {
			return fmt.Errorf("invalid provider catalog: provider %s has no client secret", p.ID)
		}
		c.byID[p.ID] = p
	}
	return nil
}

func (p *ProviderConfig) applyDefaults() {
	if p.Name == "" {
		p.Name = p.ID
	}
	if p.ClientID == "" && p.ClientIDEnv != "" {
		p.ClientID = os.Getenv(p.ClientIDEnv)
	}
	if p.ClientSecret == "" && p.ClientSecretEnv != "" {
		p.ClientSecret = os.Getenv(p.ClientSecretEnv)
	}
	p.BaseURL = strings.TrimRight(p.BaseURL, "/")
	if len(p.Classifier.TransientStatuses) == 0 {
		p.Classifier.TransientStatuses = append([]int(nil), DefaultTransientStatuses...)
	}
	for i := range p.Endpoints {
		if p.Endpoints[i].Method == "" {
			p.Endpoints[i].Method = http.MethodGet
		}
		p.Endpoints[i].Method = strings.ToUpper(p.Endpoints[i].Method)
	}
}

// Get returns the provider with the given id
func (c *Catalog) Get(id string) (*ProviderConfig, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// IDs returns all provider ids in sorted order
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Endpoint returns the named capability endpoint
func (p *ProviderConfig) Endpoint(name string) (*EndpointConfig, bool) {
	for i := range p.Endpoints {
		if p.Endpoints[i].Name == name {
			return &p.Endpoints[i], true
		}
	}
	return nil, false
}
