package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/policy"
)

var (
	policyHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#8E4EC6")).
				Padding(0, 1)
	policyKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(22)
	allowStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2E8B57"))
	denyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D0463B"))
)

func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and test the security policy",
	}
	cmd.PersistentFlags().String("file", "", "Policy document to use instead of the configured one")

	cmd.AddCommand(
		newPolicyShowCmd(),
		newPolicyCheckCmd(),
		newPolicyValidateCmd(),
	)
	return cmd
}

func newPolicyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the compiled policy",
		Args:  cobra.NoArgs,
		RunE:  runPolicyShow,
	}
}

func newPolicyCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <read|write|command> <target>",
		Short: "Evaluate a request against the policy without performing it",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runPolicyCheck,
	}
}

func newPolicyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the policy document and report errors",
		Args:  cobra.NoArgs,
		RunE:  runPolicyValidate,
	}
}

// resolvePolicy loads the document named by --file, or the configured one.
func resolvePolicy(cmd *cobra.Command) (string, *policy.Validator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	if file, _ := cmd.Flags().GetString("file"); strings.TrimSpace(file) != "" {
		cfg.Policy.Path = strings.TrimSpace(file)
	}
	v, err := loadPolicy(cfg)
	if err != nil {
		return cfg.Policy.Path, nil, err
	}
	return cfg.Policy.Path, v, nil
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	path, v, err := resolvePolicy(cmd)
	if err != nil {
		return err
	}
	renderSummary(cmd.OutOrStdout(), path, v.Policy().Summary())
	return nil
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	path, _, err := resolvePolicy(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", allowStyle.Render("OK"), path)
	return nil
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	_, v, err := resolvePolicy(cmd)
	if err != nil {
		return err
	}

	kind := strings.ToLower(strings.TrimSpace(args[0]))
	target := strings.Join(args[1:], " ")
	var d policy.Decision
	switch kind {
	case "read":
		d = v.ValidateRead(target)
	case "write":
		d = v.ValidateWrite(target)
	case "command", "cmd", "exec":
		d = v.ValidateCommand(target)
	default:
		return fmt.Errorf("unknown check kind %q (want read, write or command)", args[0])
	}

	out := cmd.OutOrStdout()
	if d.Allowed() {
		fmt.Fprintf(out, "%s %s\n", allowStyle.Render("ALLOW"), describeTarget(d, target))
		return nil
	}
	fmt.Fprintf(out, "%s %s\n", denyStyle.Render("DENY"), describeTarget(d, target))
	fmt.Fprintf(out, "  reason: %s\n", d.Reason)
	fmt.Fprintf(out, "  detail: %s\n", d.Detail)
	return nil
}

func describeTarget(d policy.Decision, raw string) string {
	if d.Target != "" && d.Target != raw {
		return fmt.Sprintf("%s (%s)", raw, d.Target)
	}
	return raw
}

func renderSummary(out io.Writer, path string, s policy.Summary) {
	row := func(key, value string) {
		fmt.Fprintf(out, "  %s %s\n", policyKeyStyle.Render(key), value)
	}
	list := func(items []string) string {
		if len(items) == 0 {
			return "none"
		}
		return strings.Join(items, ", ")
	}

	fmt.Fprintln(out, policyHeaderStyle.Render("Security Policy"))
	row("source", path)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Files")
	row("read extensions", list(s.ReadExtensions))
	row("write extensions", list(s.WriteExtensions))
	row("blocked paths", list(s.BlockedPaths))
	row("allowed directories", list(s.AllowedDirectories))
	row("max file size", fmt.Sprintf("%d bytes", s.MaxFileSize))
	row("atomic writes", fmt.Sprintf("%t", s.AtomicWrites))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands")
	enabled := denyStyle.Render("disabled")
	if s.CommandsEnabled {
		enabled = allowStyle.Render("enabled")
	}
	row("status", enabled)
	row("allowlist", list(s.CommandAllowlist))
	row("blocked patterns", list(s.BlockedSubstrings))
	row("timeout", s.CommandTimeout.String())
	row("max output", fmt.Sprintf("%d bytes", s.MaxOutputBytes))
}

// defaultPolicyDocument is written by init. It only opens the warden
// workspace directory.
func defaultPolicyDocument() string {
	workspace := strings.ReplaceAll(config.ConfigDir(), `\`, "/") + "/workspace"
	return fmt.Sprintf(`file_operations:
  allowed_extensions:
    read: [".txt", ".md", ".json", ".yaml", ".yml", ".csv", ".log"]
    write: [".txt", ".md", ".json", ".csv"]
  blocked_paths:
    - "~/.ssh/*"
    - "~/.aws/*"
    - "~/.gnupg/*"
    - "/etc/*"
  allowed_directories:
    - "%s/*"
  max_file_size_mb: 10
  atomic_writes: true

system_commands:
  enabled: false
  allowlist: ["ls", "cat", "echo", "pwd", "grep", "wc"]
  blocked_patterns: ["rm -rf", "sudo", "> /dev/", "mkfs"]
  timeout_seconds: 30

environment:
  max_output_bytes: 1048576
`, workspace)
}
