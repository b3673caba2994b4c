// Command docsctl signs in to a ChatDocs server from the terminal and lists
// documents with the stored session.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"chatdocs.app/internal/authstate"
	"chatdocs.app/internal/client"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	server    string
	tokenPath string
}

func rootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "docsctl",
		Short:         "ChatDocs command-line client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("CHATDOCS_SERVER", "http://localhost:3000"), "Web front end URL")
	cmd.PersistentFlags().StringVar(&opts.tokenPath, "token-file", "", "Where the session token is kept (default ~/.config/chatdocs/token)")

	cmd.AddCommand(
		registerCmd(opts),
		loginCmd(opts),
		logoutCmd(opts),
		statusCmd(opts),
		documentsCmd(opts),
	)
	return cmd
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// setup builds the auth state and client, and reports sign-in changes on out.
func setup(opts *options, out io.Writer) (*client.Client, *authstate.State, error) {
	path := opts.tokenPath
	if path == "" {
		var err error
		if path, err = authstate.DefaultTokenPath(); err != nil {
			return nil, nil, err
		}
	}
	state, err := authstate.New(authstate.FileTokenStore{Path: path})
	if err != nil {
		return nil, nil, err
	}
	state.Subscribe(func(loggedIn bool) {
		if loggedIn {
			fmt.Fprintln(out, "signed in")
		} else {
			fmt.Fprintln(out, "signed out")
		}
	})
	c, err := client.New(opts.server, state, nil)
	if err != nil {
		return nil, nil, err
	}
	return c, state, nil
}

func credentials(cmd *cobra.Command, email, password string) (string, string, error) {
	in := bufio.NewReader(cmd.InOrStdin())
	if email == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Email: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", "", err
		}
		email = strings.TrimSpace(line)
	}
	if password == "" {
		password = os.Getenv("CHATDOCS_PASSWORD")
	}
	if password == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Password: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", "", err
		}
		password = strings.TrimRight(line, "\r\n")
	}
	return email, password, nil
}

func registerCmd(opts *options) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := setup(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			email, password, err := credentials(cmd, email, password)
			if err != nil {
				return err
			}
			if err := c.Register(cmd.Context(), email, password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "account created, run `docsctl login` to sign in")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (or CHATDOCS_PASSWORD)")
	return cmd
}

func loginCmd(opts *options) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := setup(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			email, password, err := credentials(cmd, email, password)
			if err != nil {
				return err
			}
			exp, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session valid until %s\n", exp.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (or CHATDOCS_PASSWORD)")
	return cmd
}

func logoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := setup(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return c.Logout(cmd.Context())
		},
	}
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session token is stored",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, state, err := setup(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if state.LoggedIn() {
				fmt.Fprintln(cmd.OutOrStdout(), "logged in")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			}
			return nil
		},
	}
}

func documentsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs", "ls"},
		Short:   "List your documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := setup(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			list, err := c.Documents(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILENAME\tUPLOADED")
			for _, d := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Filename, d.UploadedAt)
			}
			return tw.Flush()
		},
	}
}
