package diagnostic

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

const (
	Stdout = "STDOUT"
	Stderr = "STDERR"

	JSONEncoding    = "json"
	ConsoleEncoding = "console"
	LogfmtEncoding  = "logfmt"
)

type Config struct {
	// STDOUT, STDERR or a file path.
	File     string `toml:"file"`
	Level    string `toml:"level"`
	Encoding string `toml:"encoding"`
}

func NewConfig() Config {
	return Config{
		File:     Stderr,
		Level:    "INFO",
		Encoding: LogfmtEncoding,
	}
}

func (c Config) Validate() error {
	if c.File == "" {
		return fmt.Errorf("logging file must be %s, %s or a path", Stdout, Stderr)
	}
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Encoding) {
	case JSONEncoding, ConsoleEncoding, LogfmtEncoding:
	default:
		return fmt.Errorf("unknown logging encoding %q, must be %q, %q or %q", c.Encoding, LogfmtEncoding, JSONEncoding, ConsoleEncoding)
	}
	return nil
}

func parseLevel(lvl string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(lvl))); err != nil {
		return l, fmt.Errorf("invalid log level %q", lvl)
	}
	return l, nil
}
