package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/continuum-app/continuum-cli/api"
	"github.com/continuum-app/continuum-cli/credentials"
)

// errReported marks failures the displayer has already shown.
var errReported = errors.New("reported")

func (c *cli) loginCmd() *cobra.Command {
	var username, password string
	var rememberMe bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			var err error
			if username == "" {
				if username, err = in.line("Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = in.password("Password: "); err != nil {
					return err
				}
			}
			if username == "" || password == "" {
				return errors.New("username and password cannot be empty")
			}

			return c.run(cmd, func(ctx context.Context, a *app) error {
				return login(ctx, a, api.LoginRequest{
					Username:   username,
					Password:   password,
					RememberMe: rememberMe,
				})
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	cmd.Flags().BoolVar(&rememberMe, "remember", false, "Ask the server for a long-lived session")
	return cmd
}

func login(ctx context.Context, a *app, req api.LoginRequest) error {
	a.display.LoggingIn(req.Username)

	res := a.session.Login(ctx, req)
	if !res.OK {
		if res.Lockout != nil {
			a.display.LockedOut(res.Message, res.Lockout.Until)
		} else {
			a.display.LoginFailed(res.Message, res.AttemptsRemaining)
		}
		return fmt.Errorf("%w: %s", errReported, res.Message)
	}

	a.display.LoginOK(req.Username)
	a.display.TokensSaved(a.location)

	snap := a.session.Snapshot()
	if snap == nil {
		return errors.New("logged in, but the profile could not be loaded")
	}
	if snap.Stats == nil {
		a.display.StatsUnavailable(errors.New("stats could not be loaded"))
	}
	a.showProfile(snap)
	return nil
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				a.session.Logout(ctx)
				a.display.LoggedOut()
				return nil
			})
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	var req api.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			var err error
			if req.Nickname == "" {
				if req.Nickname, err = in.line("Nickname: "); err != nil {
					return err
				}
			}
			if req.Username == "" {
				if req.Username, err = in.line("Username: "); err != nil {
					return err
				}
			}
			if req.Password == "" {
				if req.Password, err = in.password("Password: "); err != nil {
					return err
				}
			}

			return c.run(cmd, func(ctx context.Context, a *app) error {
				res := a.session.Register(ctx, req)
				switch {
				case res.Lockout != nil:
					a.display.LockedOut(res.Message, res.Lockout.Until)
					return fmt.Errorf("%w: %s", errReported, res.Message)
				case !res.OK:
					return errors.New(res.Message)
				}
				a.display.APICallOK(res.Message)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Nickname, "nickname", "", "Display name (prompted when omitted)")
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "Username (prompted when omitted)")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Password (prompted when omitted)")
	cmd.Flags().StringVar(&req.LanguagePref, "language", "", "Preferred language (id or en)")
	return cmd
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(ctx context.Context, a *app) error {
				snap, err := a.requireSession(ctx)
				if err != nil {
					return err
				}
				a.showProfile(snap)
				fmt.Fprintf(a.out, "%s\t%s\t%s\n", snap.User.Key(), snap.User.Username, snap.User.Role)
				return nil
			})
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credentials without contacting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, func(_ context.Context, a *app) error {
				writeStatus(a.out, a.location, a.creds, time.Now())
				return nil
			})
		},
	}
}

func writeStatus(w io.Writer, location string, creds *credentials.Manager, now time.Time) {
	set := creds.Current()

	fmt.Fprintf(w, "Token store:   %s\n", location)
	switch {
	case set.AccessToken == "":
		fmt.Fprintln(w, "Access token:  absent")
	default:
		exp, err := creds.AccessExpiry()
		switch {
		case errors.Is(err, credentials.ErrNoExpiry):
			fmt.Fprintln(w, "Access token:  present (no expiry)")
		case err != nil:
			fmt.Fprintln(w, "Access token:  present (opaque)")
		case exp.After(now):
			fmt.Fprintf(w, "Access token:  valid for %s\n", exp.Sub(now).Round(time.Second))
		default:
			fmt.Fprintf(w, "Access token:  expired %s ago\n", now.Sub(exp).Round(time.Second))
		}
	}
	fmt.Fprintf(w, "Refresh token: %s\n", presence(set.RefreshToken))
	fmt.Fprintf(w, "Session token: %s\n", presence(set.SessionToken))
}

func presence(token string) string {
	if token == "" {
		return "absent"
	}
	return "present"
}

// prompter reads answers from the user. Passwords are read without echo when
// in is a terminal.
type prompter struct {
	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, reader: bufio.NewReader(in), out: out}
}

func (p *prompter) line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	input, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

func (p *prompter) password(prompt string) (string, error) {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.line(prompt)
	}

	fmt.Fprint(p.out, prompt)
	password, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.out) // Print a newline for better formatting
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(password)), nil
}
