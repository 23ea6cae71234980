package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           int    `envconfig:"PORT" default:"5000"`
	MongoURI       string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase  string `envconfig:"MONGODB_DATABASE" default:"teamflow"`
	JWTSecret      string `envconfig:"JWT_SECRET" default:"dev-secret-change-in-production"`
	ClientURL      string `envconfig:"CLIENT_URL" default:"http://localhost:3000"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
