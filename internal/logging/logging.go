// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Level  string
	Format string
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("unknown log format %q (want text or json)", c.Format)
}

// Setup sets logrus globally.
func Setup(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	level, _ := logrus.ParseLevel(c.Level)
	logrus.SetLevel(level)
	if strings.ToLower(c.Format) == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return nil
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
