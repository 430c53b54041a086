package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/andrewblevins/space-sub000/internal/app"
	"github.com/andrewblevins/space-sub000/internal/config"
	"github.com/andrewblevins/space-sub000/internal/export"
	"github.com/andrewblevins/space-sub000/internal/space"
)

func main() {
	// Pick up SPACE_API_TOKEN and friends from a local .env if present.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a SpaceApp. The caller must defer
// app.Close().
func newApp() (*app.SpaceApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewSpaceApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var rootCmd = &cobra.Command{
	Use:   "space",
	Short: "Conversation persistence for SPACE",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Store:     %s (%s)\n", cfg.Store.Type, cfg.Store.Path)
		fmt.Printf("Remote:    %s (%s)\n", cfg.Remote.Type, cfg.Remote.BaseURL)
		fmt.Printf("Token Env: %s\n", cfg.Remote.TokenEnv)
		return nil
	},
}

// sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.Store.ListSessions(cmd.Context())
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		for _, s := range sessions {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %s  %s  %s\n",
				idStyle.Render(s.ID),
				titleStyle.Render(title),
				countStyle.Render(fmt.Sprintf("%d msgs", s.MessageCount)),
				dateStyle.Render(s.UpdatedAt.Local().Format("2006-01-02 15:04")),
			)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.Store.LoadSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		title := sess.Title
		if title == "" {
			title = "Session " + sess.ID
		}
		fmt.Println(titleStyle.Render(title))
		fmt.Println(dateStyle.Render(sess.CreatedAt.Local().Format(time.RFC1123)))
		fmt.Println()

		for _, msg := range sess.Messages {
			if msg.IsPlaceholder() {
				continue
			}
			fmt.Printf("%s %s\n%s\n\n",
				countStyle.Render(string(msg.Type)+":"),
				dateStyle.Render(msg.Timestamp.Local().Format("15:04:05")),
				msg.Content,
			)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Store.DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted session %s\n", args[0])
		return nil
	},
}

var sessionsCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the open session pointer",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		id, backend, err := a.Local.Current()
		if err != nil {
			return err
		}
		if backend == space.BackendInvalid {
			fmt.Println("No session open.")
			return nil
		}
		fmt.Printf("%s (%s)\n", id, backend)
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export ID",
	Short: "Export a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.Store.LoadSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w := os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		if err := exporter.Export(sess, w); err != nil {
			return fmt.Errorf("exporting session: %w", err)
		}
		if out != "" {
			fmt.Printf("Exported session %s to %s\n", args[0], out)
		}
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move local sessions to the remote service",
	RunE: func(cmd *cobra.Command, args []string) error {
		skip, _ := cmd.Flags().GetBool("skip")
		reset, _ := cmd.Flags().GetBool("reset")
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if reset {
			if err := a.Migrator.Reset(); err != nil {
				return err
			}
			fmt.Println("Migration record cleared.")
		}

		sessions, rec, err := a.Migrator.Discover()
		if err != nil {
			return err
		}

		if a.Migrator.State() == space.StateNoConversations {
			switch rec.Status {
			case space.MigrationCompleted:
				fmt.Printf("Migration already completed on %s (%d/%d sessions).\n",
					rec.CompletedAt.Local().Format("2006-01-02"),
					rec.Summary.Successful, rec.Summary.Total)
			case space.MigrationSkipped:
				fmt.Println("Migration was previously skipped. Use --reset to run it again.")
			default:
				fmt.Println("No local sessions to migrate.")
			}
			return nil
		}

		if skip {
			if err := a.Migrator.Skip(); err != nil {
				return err
			}
			fmt.Println("Migration skipped.")
			return nil
		}

		fmt.Printf("Found %d local session(s) to migrate:\n", len(sessions))
		for _, s := range sessions {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("  %s  %s  %s\n",
				idStyle.Render(s.ID),
				titleStyle.Render(title),
				countStyle.Render(fmt.Sprintf("%d msgs", s.MessageCount)),
			)
		}

		if !yes && !confirm("Migrate these sessions? Local copies are removed after transfer.") {
			fmt.Println("Aborted. Run with --skip to dismiss permanently.")
			return nil
		}

		result, err := a.Migrator.Migrate(cmd.Context(), func(current, total int) {
			fmt.Printf("Migrating session %d of %d...\n", current, total)
		})
		if err != nil {
			return fmt.Errorf("migration did not finish: %w", err)
		}

		fmt.Printf("Done: %d migrated, %d failed.\n", result.Successful, result.Failed)
		for _, r := range result.Results {
			if !r.Success {
				fmt.Printf("  session %d failed: %v (local copy retained)\n", r.OriginalID, r.Err)
			}
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encrypted API keys",
}

var keysSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if ok, err := a.Encryptor.IsConfigured(); err != nil {
			return err
		} else if ok {
			if !confirm("A key pair already exists. Replacing it orphans stored keys. Continue?") {
				return nil
			}
		}

		pass, err := readPassword("Passphrase: ")
		if err != nil {
			return err
		}
		again, err := readPassword("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != again {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.Encryptor.Setup(pass); err != nil {
			return err
		}
		fmt.Println("Key pair generated.")
		return nil
	},
}

var keysSetCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Store an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		value, err := readPassword("Value: ")
		if err != nil {
			return err
		}

		if err := a.Vault.Set(args[0], value); err != nil {
			return err
		}
		fmt.Printf("Stored %s\n", args[0])
		return nil
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Decrypt and print an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassword("Passphrase: ")
		if err != nil {
			return err
		}
		dc, err := a.Encryptor.Unlock(pass)
		if err != nil {
			return err
		}

		value, err := a.Vault.Get(args[0], dc)
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored API key names",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.Vault.Names()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No keys stored.")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Remove an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Vault.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// settings command
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage workspace settings",
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "View settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.Workspace.Settings()
		fmt.Printf("max-tokens:        %d\n", s.MaxTokens)
		fmt.Printf("reasoning-mode:    %t\n", s.ReasoningMode)
		fmt.Printf("sidebar-collapsed: %t\n", s.SidebarCollapsed)
		fmt.Printf("auto-scroll:       %t\n", s.AutoScroll)
		fmt.Printf("paragraph-spacing: %g\n", s.ParagraphSpacing)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.Workspace.Settings()
		key, value := args[0], args[1]

		switch key {
		case "max-tokens":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("max-tokens must be an integer: %w", err)
			}
			s.MaxTokens = n
		case "reasoning-mode", "sidebar-collapsed", "auto-scroll":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%s must be true or false: %w", key, err)
			}
			switch key {
			case "reasoning-mode":
				s.ReasoningMode = b
			case "sidebar-collapsed":
				s.SidebarCollapsed = b
			case "auto-scroll":
				s.AutoScroll = b
			}
		case "paragraph-spacing":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("paragraph-spacing must be a number: %w", err)
			}
			s.ParagraphSpacing = f
		default:
			return fmt.Errorf("unknown setting: %s", key)
		}

		a.Workspace.SetSettings(s)
		fmt.Printf("Set %s to %s\n", key, value)
		return nil
	},
}

// advisors command
var advisorsCmd = &cobra.Command{
	Use:   "advisors",
	Short: "Manage advisors",
}

var advisorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List advisors",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		advisors := a.Workspace.Advisors()
		if len(advisors) == 0 {
			fmt.Println("No advisors defined.")
			return nil
		}
		for _, adv := range advisors {
			marker := " "
			if adv.Active {
				marker = "*"
			}
			fmt.Printf("%s %s  %s\n", marker, titleStyle.Render(adv.Name), dateStyle.Render(adv.Description))
		}
		return nil
	},
}

var advisorsAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add an advisor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		color, _ := cmd.Flags().GetString("color")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		adv := space.Advisor{Name: args[0], Description: description, Color: color}
		if err := a.Workspace.AddAdvisor(adv); err != nil {
			return err
		}
		fmt.Printf("Added advisor %s\n", args[0])
		return nil
	},
}

var advisorsRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove an advisor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Workspace.RemoveAdvisor(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed advisor %s\n", args[0])
		return nil
	},
}

var advisorsToggleCmd = &cobra.Command{
	Use:   "toggle NAME",
	Short: "Toggle an advisor active or inactive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Workspace.ToggleAdvisor(args[0]); err != nil {
			return err
		}
		fmt.Printf("Toggled advisor %s\n", args[0])
		return nil
	},
}

// confirm prompts for a y/N answer on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// readPassword reads a secret from the terminal without echo.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(data), nil
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// sessions subcommands
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsCurrentCmd)

	// keys subcommands
	keysCmd.AddCommand(keysSetupCmd)
	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysShowCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysDeleteCmd)

	// settings subcommands
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	// advisors subcommands
	advisorsCmd.AddCommand(advisorsListCmd)
	advisorsCmd.AddCommand(advisorsAddCmd)
	advisorsCmd.AddCommand(advisorsRemoveCmd)
	advisorsCmd.AddCommand(advisorsToggleCmd)
	advisorsAddCmd.Flags().String("description", "", "Advisor description")
	advisorsAddCmd.Flags().String("color", "", "Display color")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("format", "f", "json", "Export format: json, md, yaml")
	exportCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("skip", false, "Dismiss migration permanently")
	migrateCmd.Flags().Bool("reset", false, "Clear the migration record first")
	migrateCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(advisorsCmd)
}
