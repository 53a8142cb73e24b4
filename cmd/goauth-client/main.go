// Command goauth-client manages an authentication session from the shell.
//
// Configuration comes from GOAUTH_CLIENT_* environment variables (see
// goAuthClient.LoadConfigFromEnv); tokens persist in the configured store
// (a JSON file by default) between invocations.
//
//	goauth-client login -email a@b.com
//	goauth-client whoami
//	goauth-client logout
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/backend"
)

type cli struct {
	m      *goAuthClient.Manager
	stdin  *bufio.Reader
	stdout io.Writer
	json   bool
}

type command struct {
	summary string
	run     func(ctx context.Context, c *cli, args []string) error
}

var commands = map[string]command{
	"login":    {"sign in and persist the session", cmdLogin},
	"logout":   {"end the session", cmdLogout},
	"whoami":   {"print the signed-in user", cmdWhoami},
	"refresh":  {"rotate the session tokens", cmdRefresh},
	"profile":  {"update name or email", cmdProfile},
	"passwd":   {"change the password", cmdPasswd},
	"register": {"create an account", cmdRegister},
	"verify":   {"confirm an email verification token", cmdVerify},
	"forgot":   {"request a password reset email", cmdForgot},
	"reset":    {"set a new password with a reset token", cmdReset},
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("goauth-client", flag.ContinueOnError)
	global.SetOutput(stderr)
	var (
		baseURL     = global.String("base-url", "", "backend base URL (overrides GOAUTH_CLIENT_BACKEND_BASE_URL)")
		storeDriver = global.String("store", "", "token store: memory, file or redis (overrides GOAUTH_CLIENT_STORAGE_DRIVER)")
		verbose     = global.Bool("v", false, "debug logging")
		jsonOut     = global.Bool("json", false, "print results as JSON")
	)
	global.Usage = func() { usage(global) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		usage(global)
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		usage(global)
		return 2
	}

	cfg, err := loadConfig(*baseURL, *storeDriver, *verbose)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger := goAuthClient.NewLogger(stderr, cfg.Logging)

	tokens, closeStore, err := goAuthClient.OpenStore(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(stderr, "store: %v\n", err)
		return 1
	}
	defer closeStore()

	client, err := backend.NewClient(cfg.Backend, backend.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "backend: %v\n", err)
		return 1
	}
	b := goAuthClient.New().
		WithConfig(cfg).
		WithBackend(client).
		WithStore(tokens).
		WithLogger(logger)
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(goAuthClient.NewSlogSink(logger))
	}
	m, err := b.Build()
	if err != nil {
		fmt.Fprintf(stderr, "manager: %v\n", err)
		return 1
	}
	defer m.Close()

	if _, err := m.Hydrate(ctx); err != nil {
		fmt.Fprintf(stderr, "hydrate: %v\n", err)
		return 1
	}

	c := &cli{m: m, stdin: bufio.NewReader(stdin), stdout: stdout, json: *jsonOut}
	if err := cmd.run(ctx, c, rest[1:]); err != nil {
		logger.DebugContext(ctx, "goAuthClient: command failed", "command", rest[0], "error", err)
		fmt.Fprintf(stderr, "error: %s\n", goAuthClient.ErrorMessage(err))
		return 1
	}
	return 0
}

func loadConfig(baseURL, storeDriver string, verbose bool) (goAuthClient.Config, error) {
	cfg, err := goAuthClient.LoadConfigFromEnv()
	if err != nil {
		return cfg, err
	}
	if baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if storeDriver != "" {
		cfg.Storage.Driver = storeDriver
	}
	if verbose {
		cfg.Logging.Level = "debug"
	} else if cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}
	return cfg, cfg.Validate()
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "usage: goauth-client [flags] <command> [command flags]")
	fmt.Fprintln(out, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-9s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(out, "\nflags:")
	fs.PrintDefaults()
}

// secret returns value, or reads one line from stdin when value is empty.
func (c *cli) secret(prompt, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(c.stdout, "%s: ", prompt)
	line, err := c.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(prompt), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
