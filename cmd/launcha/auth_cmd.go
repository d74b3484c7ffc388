package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bang0930/mcp-web/internal/apiclient"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to your launcha account",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE:  runLogout,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create a launcha account",
	RunE:  runSignup,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE:  runWhoami,
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage your account",
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete your account and sign out",
	RunE:  runAccountDelete,
}

var (
	authEmail     string
	authName      string
	passwordStdin bool
	confirmYes    bool
)

func init() {
	accountCmd.AddCommand(accountDeleteCmd)

	loginCmd.Flags().StringVar(&authEmail, "email", "", "Account email (required)")
	loginCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	loginCmd.MarkFlagRequired("email")

	signupCmd.Flags().StringVar(&authEmail, "email", "", "Account email (required)")
	signupCmd.Flags().StringVar(&authName, "name", "", "Display name")
	signupCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	signupCmd.MarkFlagRequired("email")

	accountDeleteCmd.Flags().BoolVar(&confirmYes, "yes", false, "Confirm deletion without prompting")
}

func runLogin(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd, passwordStdin)
	if err != nil {
		return err
	}
	session, err := env.sessions.Login(cmd.Context(), strings.TrimSpace(authEmail), password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", session.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := env.sessions.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func runSignup(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd, passwordStdin)
	if err != nil {
		return err
	}
	email := strings.TrimSpace(authEmail)
	err = env.services.Auth.Signup(cmd.Context(), apiclient.SignupInput{
		Email:    email,
		Password: password,
		Name:     strings.TrimSpace(authName),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Account created. Run: launcha login --email %s\n", email)
	return nil
}

type whoami struct {
	Authenticated bool       `json:"authenticated" yaml:"authenticated"`
	Email         string     `json:"email,omitempty" yaml:"email,omitempty"`
	Subject       string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

func runWhoami(cmd *cobra.Command, args []string) error {
	session := env.sessions.Current()
	info := whoami{
		Authenticated: session.Authenticated(),
		Email:         session.Email,
		Subject:       session.Subject,
	}
	if !session.ExpiresAt.IsZero() {
		exp := session.ExpiresAt
		info.ExpiresAt = &exp
	}

	if ok, err := printStructured(cmd.OutOrStdout(), outputFormat, info); ok {
		return err
	}

	w := cmd.OutOrStdout()
	if !info.Authenticated {
		if session.Token() != "" {
			fmt.Fprintln(w, "Session expired. Run: launcha login")
		} else {
			fmt.Fprintln(w, "Not logged in")
		}
		return nil
	}
	who := info.Email
	if who == "" {
		who = info.Subject
	}
	fmt.Fprintf(w, "Logged in as %s\n", orDash(who))
	if info.ExpiresAt != nil {
		fmt.Fprintf(w, "Expires:      %s\n", info.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runAccountDelete(cmd *cobra.Command, args []string) error {
	if !confirmYes {
		return errors.New("refusing to delete the account without --yes")
	}
	if err := env.sessions.DeleteAccount(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Account deleted")
	return nil
}

// readPassword prompts on a terminal, otherwise reads one line from stdin.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if !fromStdin {
		if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			bytes, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return "", fmt.Errorf("read password: %w", err)
			}
			return string(bytes), nil
		}
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return "", errors.New("password is required")
	}
	return secret, nil
}
