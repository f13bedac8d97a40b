package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// ExitError carries the process exit code for a failed invocation.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Config is the parsed command line.
type Config struct {
	SchemaPaths []string
	Backend     string
	StorePath   string
	Table       string
	LogLevel    string
	LogFormat   string
	Command     string
	Args        []string
}

var commandArity = map[string]int{
	"schemas":  0,
	"exists":   1,
	"keys":     1,
	"get":      2,
	"set":      3,
	"dump":     1,
	"describe": 1,
	"openapi":  1,
}

// Parse processes command-line arguments. It returns the config, whether the
// program should exit cleanly (help was printed) or an *ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	flagSet := flag.NewFlagSet("settingsctl", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, `
settingsctl - read and write typed settings described by HCL schema catalogs.

Usage:
  settingsctl [options] COMMAND [ARGS]

Commands:
  schemas                      List installed schema ids.
  exists   SCHEMA              Report whether a schema is installed.
  keys     SCHEMA              List the keys of a schema.
  get      SCHEMA KEY          Print the value of a key as JSON.
  set      SCHEMA KEY VALUE    Validate and store a value (JSON, or a bare string).
  dump     SCHEMA              Print every key of a schema as a JSON object.
  describe SCHEMA              Print key types, defaults and constraints.
  openapi  SCHEMA              Print the schema as an OpenAPI 3 document.

Options:
`)
		flagSet.PrintDefaults()
	}

	schemasFlag := flagSet.String("schemas", "schemas", "Comma-separated schema catalog files or directories.")
	backendFlag := flagSet.String("backend", "file", "Settings backend. Options: 'file' or 'dynamo'.")
	storeFlag := flagSet.String("store", "settings.hcl", "Settings file for the 'file' backend.")
	tableFlag := flagSet.String("table", "settings", "DynamoDB table for the 'dynamo' backend.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "warn", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, true, nil
	}
	command := flagSet.Arg(0)
	rest := flagSet.Args()[1:]
	arity, ok := commandArity[command]
	if !ok {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", command)}
	}
	if len(rest) != arity {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("%s expects %d argument(s), got %d", command, arity, len(rest))}
	}

	backend := strings.ToLower(*backendFlag)
	if backend != "file" && backend != "dynamo" {
		return nil, false, &ExitError{Code: 2, Message: "invalid backend: must be 'file' or 'dynamo'"}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	return &Config{
		SchemaPaths: splitPaths(*schemasFlag),
		Backend:     backend,
		StorePath:   *storeFlag,
		Table:       *tableFlag,
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		Command:     command,
		Args:        rest,
	}, false, nil
}

func splitPaths(value string) []string {
	var paths []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			paths = append(paths, part)
		}
	}
	return paths
}
