package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/rollcall/internal/output"
	"github.com/marcus/rollcall/internal/syncclient"
	"github.com/marcus/rollcall/internal/syncconfig"
	"github.com/marcus/rollcall/internal/syncerr"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage the server session",
	GroupID: "system",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a session token issued by the attendance server",
	Long: `Store a bearer token for the attendance server. The token is read from
--token, or from stdin when omitted. The teacher id defaults to the token's
subject. Unless --offline is set the token is checked against the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		teacherID, _ := cmd.Flags().GetString("teacher")

		if token == "" {
			fmt.Fprint(os.Stderr, "Token: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read token: %w", err)
			}
			token = strings.TrimSpace(line)
		}
		if token == "" {
			return errors.New("token required")
		}

		info, err := syncclient.InspectToken(token)
		if err != nil {
			output.Warning("token is not a JWT; storing as-is")
		} else {
			if teacherID == "" {
				teacherID = info.Subject
			}
			if info.ExpiresAt != nil && !time.Now().Before(*info.ExpiresAt) {
				return syncerr.Auth(syncclient.ErrTokenExpired)
			}
		}
		if teacherID == "" {
			return errors.New("teacher id required (--teacher)")
		}

		deviceID, err := syncconfig.EnsureDeviceID()
		if err != nil {
			return fmt.Errorf("device id: %w", err)
		}

		if !offline && cfg.ServerURL != "" {
			if err := verifyToken(cmd.Context(), token, deviceID); err != nil {
				if syncerr.KindOf(err) == syncerr.KindAuth {
					return err
				}
				output.Warning("could not reach %s; token saved unverified", cfg.ServerURL)
			}
		}

		creds := &syncconfig.AuthCredentials{
			Token:     token,
			TeacherID: teacherID,
			DeviceID:  deviceID,
			ServerURL: cfg.ServerURL,
		}
		if err := syncconfig.SaveAuth(creds); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}
		output.Success("Logged in as %s", teacherID)
		return nil
	},
}

// verifyToken makes one authenticated request. Only a KindAuth failure
// means the token is unusable.
func verifyToken(ctx context.Context, token, deviceID string) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.RosterTimeout)
	defer cancel()
	client := syncclient.New(cfg.ServerURL, token, deviceID, cfg.Sync.Timeout)
	_, err := client.FetchRoster(ctx, "")
	return err
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := syncconfig.ClearAuth(); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Println("Logged out. Marks stay queued until the next login.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"whoami"},
	Short:   "Show authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := syncconfig.LoadAuth()
		if err != nil {
			return fmt.Errorf("load auth: %w", err)
		}
		token := syncconfig.GetToken()
		if token == "" {
			fmt.Println("Not logged in.")
			if creds != nil && creds.DeviceID != "" {
				fmt.Printf("Device:  %s\n", creds.DeviceID)
			}
			return nil
		}

		if creds != nil {
			fmt.Printf("Teacher: %s\n", creds.TeacherID)
			fmt.Printf("Device:  %s\n", creds.DeviceID)
		}
		fmt.Printf("Server:  %s\n", cfg.ServerURL)
		if os.Getenv(syncconfig.EnvPrefix+"_TOKEN") != "" {
			fmt.Printf("Token:   from %s_TOKEN\n", syncconfig.EnvPrefix)
		}

		info, err := syncclient.InspectToken(token)
		if err != nil {
			fmt.Println("Expires: unknown (opaque token)")
			return nil
		}
		switch {
		case info.ExpiresAt == nil:
			fmt.Println("Expires: never")
		case !time.Now().Before(*info.ExpiresAt):
			output.Warning("session expired %s; run 'rollcall auth login'", output.FormatTimeAgo(*info.ExpiresAt))
		default:
			fmt.Printf("Expires: %s (in %s)\n", info.ExpiresAt.Local().Format("2006-01-02 15:04"),
				time.Until(*info.ExpiresAt).Round(time.Minute))
		}
		return nil
	},
}

func init() {
	authLoginCmd.Flags().String("token", "", "Bearer token (read from stdin when omitted)")
	authLoginCmd.Flags().String("teacher", "", "Teacher id stamped on marks (default: token subject)")
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
