package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"thumblify/thumbnail-api/internal/client"
)

func newRegisterCmd(opts *options) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := promptPassword(cmd, password)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			state, err := c.Register(cmd.Context(), name, email, pw)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created. Logged in as %s <%s>\n", state.User.Name, state.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCmd(opts *options) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := promptPassword(cmd, password)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			state, err := c.Login(cmd.Context(), email, pw)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", state.User.Name, state.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if _, err := c.Logout(cmd.Context()); err != nil {
				return explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			state, err := c.Rehydrate(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if !state.Authenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (%s)\n", state.User.Name, state.User.Email, state.User.ID)
			return nil
		},
	}
}

func newGenerateCmd(opts *options) *cobra.Command {
	var (
		p        client.GenerateParams
		wait     bool
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Request a new thumbnail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, state, err := opts.session(cmd.Context())
			if err != nil {
				return explain(err)
			}
			t, err := c.RequestGeneration(cmd.Context(), state, p)
			if err != nil {
				return explain(err)
			}
			if wait {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				t, err = c.WaitForThumbnail(ctx, state, t.ID, interval)
				if err != nil {
					return explain(err)
				}
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.Title, "title", "", "thumbnail title")
	f.StringVar(&p.Prompt, "prompt", "", "additional prompt text")
	f.StringVar(&p.Style, "style", "", "visual style")
	f.StringVar(&p.AspectRatio, "aspect-ratio", "", "16:9, 1:1 or 9:16")
	f.StringVar(&p.ColorScheme, "color-scheme", "", "color scheme id")
	f.BoolVar(&p.TextOverlay, "text-overlay", false, "leave room for title text")
	f.BoolVar(&wait, "wait", false, "wait until the thumbnail is ready or failed")
	f.DurationVar(&interval, "interval", 2*time.Second, "poll interval with --wait")
	f.DurationVar(&timeout, "timeout", 3*time.Minute, "give up waiting after this long")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one thumbnail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, state, err := opts.session(cmd.Context())
			if err != nil {
				return explain(err)
			}
			t, err := c.Get(cmd.Context(), state, args[0])
			if err != nil {
				return explain(err)
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your thumbnails, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, state, err := opts.session(cmd.Context())
			if err != nil {
				return explain(err)
			}
			items, err := c.List(cmd.Context(), state)
			if err != nil {
				return explain(err)
			}
			for _, t := range items {
				url := "-"
				if t.ImageURL != nil {
					url = *t.ImageURL
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Title, url)
			}
			return nil
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a thumbnail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, state, err := opts.session(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if err := c.Delete(cmd.Context(), state, args[0]); err != nil {
				return explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted", args[0])
			return nil
		},
	}
}
