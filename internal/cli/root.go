// Package cli implements thumbctl, a command-line client for thumbnail-api.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"thumblify/thumbnail-api/internal/client"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type options struct {
	server      string
	sessionFile string
}

// NewRootCmd builds the thumbctl command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "thumbctl",
		Short:         "Generate and manage thumbnails from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("THUMBCTL_SERVER", "http://localhost:8080"), "thumbnail-api base URL")
	root.PersistentFlags().StringVar(&opts.sessionFile, "session-file", defaultSessionFile(), "where the session cookie is kept")

	root.AddCommand(
		newRegisterCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newGenerateCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newDeleteCmd(opts),
	)
	return root
}

func (o *options) client() (*client.Client, error) {
	return client.New(o.server, client.WithSessionFile(client.NewSessionFile(o.sessionFile)))
}

// session returns a client with the rehydrated auth state, or ErrLoginRequired
// when the stored session is gone.
func (o *options) session(ctx context.Context) (*client.Client, client.AuthState, error) {
	c, err := o.client()
	if err != nil {
		return nil, client.Anonymous(), err
	}
	state, err := c.Rehydrate(ctx)
	if err != nil {
		return nil, client.Anonymous(), err
	}
	if !state.Authenticated {
		return nil, state, client.ErrLoginRequired
	}
	return c, state, nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".thumbctl-session.json")
	}
	return filepath.Join(dir, "thumbctl", "session.json")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// promptPassword reads a password without echo when none was given by flag.
func promptPassword(cmd *cobra.Command, given string) (string, error) {
	if given != "" {
		return given, nil
	}
	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// explain turns client errors into something a terminal user can act on.
func explain(err error) error {
	if errors.Is(err, client.ErrLoginRequired) {
		return errors.New("not logged in; run `thumbctl login` first")
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return errors.New(apiErr.Message)
	}
	return err
}
