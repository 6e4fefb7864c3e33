package configx

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvFile is the optional dotenv file exported into the process environment
// before any config struct is populated. Override with CONFIG_ENV_FILE.
const EnvFile = ".env"

// Load populates a config struct of type T from the environment. Fields are
// declared with envconfig tags; prefix namespaces the variables (e.g. "DB"
// reads DB_DSN into a field tagged `envconfig:"DSN"`).
func Load[T any](prefix string) (*T, error) {
	if err := exportEnvFile(resolveEnvFile()); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// MustLoad is Load for composition-time wiring: config errors are fatal.
func MustLoad[T any](prefix string) *T {
	conf, err := Load[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

func resolveEnvFile() string {
	if path := strings.TrimSpace(os.Getenv("CONFIG_ENV_FILE")); path != "" {
		return path
	}
	return EnvFile
}

func exportEnvFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for key, val := range v.AllSettings() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			// process environment wins over the dotenv file
			continue
		}
		if err := os.Setenv(name, fmt.Sprint(val)); err != nil {
			return err
		}
	}
	return nil
}
