// Package settings holds the resolved configuration of the aira client.
package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/aira/pkg/conversation"
	"github.com/go-go-golems/aira/pkg/gateway"
	"github.com/go-go-golems/aira/pkg/identity"
	"github.com/go-go-golems/aira/pkg/session"
)

const (
	GatewayHTTP = "http"
	GatewayEcho = "echo"
)

type Settings struct {
	BackendURL     string        `mapstructure:"backend-url" yaml:"backend-url" validate:"required,url"`
	Gateway        string        `mapstructure:"gateway" yaml:"gateway" validate:"oneof=http echo"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	RecentLimit    int           `mapstructure:"recent-limit" yaml:"recent-limit" validate:"min=1,max=100"`
	ErrorText      string        `mapstructure:"error-text" yaml:"error-text" validate:"required"`
	AlertsCacheTTL time.Duration `mapstructure:"alerts-cache-ttl" yaml:"alerts-cache-ttl" validate:"gte=0"`
	EchoDelay      time.Duration `mapstructure:"echo-delay" yaml:"echo-delay" validate:"gte=0"`
	MetricsAddr    string        `mapstructure:"metrics-addr" yaml:"metrics-addr,omitempty" validate:"omitempty,hostname_port"`
	User           identity.User `mapstructure:"user" yaml:"user"`
}

func Defaults() Settings {
	return Settings{
		BackendURL:     gateway.DefaultBaseURL,
		Gateway:        GatewayHTTP,
		Timeout:        session.DefaultTimeout,
		RecentLimit:    conversation.DefaultRecentLimit,
		ErrorText:      session.DefaultErrorText,
		AlertsCacheTTL: gateway.DefaultAlertsTTL,
		EchoDelay:      10 * time.Millisecond,
	}
}

// AddFlags registers the settings that can be given on the command line.
// User profile fields are only read from the config file and environment.
func AddFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("backend-url", d.BackendURL, "Base URL of the AIRA backend")
	fs.String("gateway", d.Gateway, "Backend gateway (http, echo)")
	fs.Duration("timeout", d.Timeout, "Timeout of a single backend call")
	fs.Int("recent-limit", d.RecentLimit, "Number of opening queries kept in the recent list")
	fs.String("error-text", d.ErrorText, "Message shown when the backend cannot answer")
	fs.Duration("alerts-cache-ttl", d.AlertsCacheTTL, "How long alert analyses are cached")
	fs.Duration("echo-delay", d.EchoDelay, "Per-character delay of the echo gateway")
	fs.String("metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9090)")
}

// SetDefaults registers defaults for every key so environment variables
// are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("backend-url", d.BackendURL)
	v.SetDefault("gateway", d.Gateway)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("recent-limit", d.RecentLimit)
	v.SetDefault("error-text", d.ErrorText)
	v.SetDefault("alerts-cache-ttl", d.AlertsCacheTTL)
	v.SetDefault("echo-delay", d.EchoDelay)
	v.SetDefault("metrics-addr", "")
	v.SetDefault("user.display-name", "")
	v.SetDefault("user.email", "")
	v.SetDefault("user.photo-url", "")
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)
	s := Defaults()
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	s.BackendURL = strings.TrimSpace(s.BackendURL)
	s.Gateway = strings.ToLower(strings.TrimSpace(s.Gateway))
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var validate = validator.New()

func (s *Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "invalid settings")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", field, fe.Value())
	case "email":
		return fmt.Sprintf("%s must be an email address, got %q", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
}
