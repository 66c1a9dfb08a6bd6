package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/client"
)

var (
	loginEmail string
	loginToken string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a bearer token for the configured API",
	Long: `Store a bearer token in the OS keychain.

Pass --token with a token obtained elsewhere, or --email to sign in against a
development API that issues tokens from /api/auth/login.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (loginEmail == "") == (loginToken == "") {
			return errors.New("exactly one of --email or --token is required")
		}

		token := loginToken
		if loginEmail != "" {
			var err error
			token, err = requestToken(cmd.Context(), cfg.APIBaseURL, loginEmail)
			if err != nil {
				return err
			}
		}

		store := auth.NewKeyringStore(cfg.APIBaseURL)
		sess := auth.NewSession(store, nil)
		if err := sess.Login(token); err != nil {
			return err
		}

		me, err := client.NewHTTPClient(cfg.APIBaseURL, sess).Me(cmd.Context())
		if err != nil {
			_ = store.Clear()
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", me.Email, me.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.NewKeyringStore(cfg.APIBaseURL).Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := auth.NewSession(credentials(cfg), nil)
		me, err := client.NewHTTPClient(cfg.APIBaseURL, sess).Me(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(me)
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Email to sign in with (development API)")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Bearer token to store")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

// requestToken exchanges an email for a token at /api/auth/login. The call is
// unauthenticated so it bypasses client.HTTPClient.
func requestToken(ctx context.Context, baseURL, email string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email})
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", &client.TransportError{Op: "login", Message: "Network error", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	var out struct {
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.Token == "" {
		log.Debug().Int("status", resp.StatusCode).Msg("login rejected")
		if out.Message == "" {
			out.Message = resp.Status
		}
		return "", fmt.Errorf("login failed: %s", out.Message)
	}
	return out.Token, nil
}
