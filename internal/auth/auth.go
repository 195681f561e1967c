// Package auth supplies bearer tokens from the identity provider side.
//
// Providers are consulted before every API request and never cache a token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoToken is returned when a provider has no token to offer.
var ErrNoToken = errors.New("no valid session found, please sign in")

// Provider yields the current bearer token and can end the session.
type Provider interface {
	Token(ctx context.Context) (string, error)
	SignOut(ctx context.Context) error
}

// --- Static ---

// Static serves a fixed token, typically from config or environment.
type Static struct {
	token string
}

// NewStatic returns a provider for a fixed token.
func NewStatic(token string) *Static {
	return &Static{token: strings.TrimSpace(token)}
}

func (s *Static) Token(_ context.Context) (string, error) {
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// SignOut forgets the token for the lifetime of this provider.
func (s *Static) SignOut(_ context.Context) error {
	s.token = ""
	return nil
}

// --- File ---

// File reads the token from a file written by `civicadmin login`.
type File struct {
	Path string
}

// NewFile returns a provider backed by the token file at path.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Token(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Save stores token with 0600 permissions, creating the directory.
func (f *File) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("refusing to save an empty token")
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(f.Path), err)
	}
	return os.WriteFile(f.Path, []byte(token+"\n"), 0600)
}

// SignOut deletes the token file. A missing file is not an error.
func (f *File) SignOut(_ context.Context) error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// --- Command ---

// Command runs an external helper (an SSO CLI, a secrets manager) and uses
// the first line of its stdout as the token. The command line is split on
// whitespace and executed without a shell.
type Command struct {
	Argv []string

	run func(ctx context.Context, argv []string) ([]byte, error)
}

// NewCommand parses a command line such as "sso-helper token --profile ops".
func NewCommand(commandLine string) *Command {
	return &Command{Argv: strings.Fields(commandLine), run: runCommand}
}

func runCommand(ctx context.Context, argv []string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s: %s", strings.Join(argv, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
	}
	return out, nil
}

func (c *Command) Token(ctx context.Context) (string, error) {
	if len(c.Argv) == 0 {
		return "", ErrNoToken
	}
	run := c.run
	if run == nil {
		run = runCommand
	}
	out, err := run(ctx, c.Argv)
	if err != nil {
		return "", fmt.Errorf("token command: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	token := strings.TrimSpace(line)
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// SignOut is a no-op; the helper owns its own session.
func (c *Command) SignOut(_ context.Context) error { return nil }

// --- Chain ---

// Chain asks each provider in order and returns the first token found.
type Chain []Provider

func (c Chain) Token(ctx context.Context) (string, error) {
	var errs []error
	for _, p := range c {
		token, err := p.Token(ctx)
		if err == nil && token != "" {
			return token, nil
		}
		if err != nil && !errors.Is(err, ErrNoToken) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("%w: %w", ErrNoToken, errors.Join(errs...))
	}
	return "", ErrNoToken
}

// SignOut signs out of every provider, reporting all failures.
func (c Chain) SignOut(ctx context.Context) error {
	var errs []error
	for _, p := range c {
		if err := p.SignOut(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
