// Package config loads YAML configuration with .env and environment overrides.
//
// Precedence, lowest to highest: YAML file, defaults hook, environment. Environment
// values are read after .env files are loaded (ENV_FILE, or .env.local then .env), so
// a value exported in the shell always wins over one written in a dotenv file.
//
//	type Config struct {
//	    Port int `yaml:"port" env:"INDEXER_PORT"`
//	}
//	cfg, err := config.LoadWithDefaults[Config]("config.yml", setDefaults)
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads path into a T and applies `env` tag overrides. A missing file is not an
// error: the service can be configured from the environment alone.
func Load[T any](path string) (*T, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	var cfg T
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	default:
		if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, unmarshalErr)
		}
	}

	ApplyEnv(&cfg)
	return &cfg, nil
}

// LoadWithDefaults is Load with a defaults hook run between the file and the environment.
func LoadWithDefaults[T any](path string, setDefaults func(*T)) (*T, error) {
	cfg, err := Load[T](path)
	if err != nil {
		return nil, err
	}
	if setDefaults != nil {
		setDefaults(cfg)
	}
	ApplyEnv(cfg)
	return cfg, nil
}

// GetConfigPath returns CONFIG_PATH when set, otherwise defaultPath.
func GetConfigPath(defaultPath string) string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return defaultPath
}

func loadDotEnv() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		return ignoreMissing(godotenv.Load(envFile))
	}
	if err := ignoreMissing(godotenv.Load(".env.local")); err != nil {
		return err
	}
	return ignoreMissing(godotenv.Load(".env"))
}

func ignoreMissing(err error) error {
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv walks cfg (a pointer to struct) and overwrites every field tagged
// `env:"NAME"` for which NAME is set and non-empty.
func ApplyEnv(cfg any) {
	v := reflect.ValueOf(cfg)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	applyStruct(v)
}

func applyStruct(v reflect.Value) {
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		switch {
		case field.Kind() == reflect.Struct:
			applyStruct(field)
			continue
		case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			applyStruct(field.Elem())
			continue
		}

		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		if raw := os.Getenv(name); raw != "" {
			setFromString(field, raw)
		}
	}
}

// setFromString leaves the field untouched when raw does not parse.
func setFromString(field reflect.Value, raw string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			if d, err := time.ParseDuration(raw); err == nil {
				field.SetInt(int64(d))
			}
			return
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			field.SetUint(n)
		}
	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Bool:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "1", "yes":
			field.SetBool(true)
		default:
			field.SetBool(false)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	}
}
