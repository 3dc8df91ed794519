// Package platform adapts the host control panel's external tools to the
// engine's collaborator interfaces: the account packager, the hot database
// dump tool, the account restore mechanism and account enumeration. Each is
// a thin wrapper around a configured command line; tests substitute fakes.
package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hostbackup/internal/engine"
)

// ExecPackager invokes the platform's account-packaging command. The
// command is run as: <cmd> <args...> <account> <workdir> and must print the
// produced archive path as its last output line.
type ExecPackager struct {
	Command string
	Args    []string
}

// Package produces an account archive in workDir.
func (p *ExecPackager) Package(ctx context.Context, account, workDir string, opts engine.PackageOptions) (string, error) {
	args := append([]string{}, p.Args...)
	if opts.SkipHomeDir {
		args = append(args, "--skiphomedir")
	}
	if opts.SkipDatabases {
		args = append(args, "--skipmysql")
	}
	if opts.Incremental {
		args = append(args, "--incremental")
	}
	args = append(args, account, workDir)

	out, err := runCommand(ctx, p.Command, args)
	if err != nil {
		return "", engine.NewToolError(fmt.Sprintf("packager failed for account %s", account), err)
	}

	archivePath := lastLine(out)
	if archivePath == "" {
		// Fall back to the conventional archive name.
		archivePath = filepath.Join(workDir, fmt.Sprintf("%s-%s.tar.gz", account, time.Now().Format("20060102-150405")))
	}
	if _, err := os.Stat(archivePath); err != nil {
		return "", engine.NewToolError(fmt.Sprintf("packager reported no archive for account %s", account), err)
	}
	return archivePath, nil
}

// ExecDBBackupTool invokes the platform's hot database dump command as:
// <cmd> <args...> <account> <workdir>, printing the dump path last.
type ExecDBBackupTool struct {
	Command string
	Args    []string
}

// DumpDatabases produces a database archive for the account.
func (t *ExecDBBackupTool) DumpDatabases(ctx context.Context, account, workDir string) (string, error) {
	args := append(append([]string{}, t.Args...), account, workDir)

	out, err := runCommand(ctx, t.Command, args)
	if err != nil {
		return "", engine.NewToolError(fmt.Sprintf("database dump failed for account %s", account), err)
	}

	dumpPath := lastLine(out)
	if dumpPath == "" {
		return "", engine.NewToolError(fmt.Sprintf("database dump tool reported no artifact for account %s", account), nil)
	}
	if _, err := os.Stat(dumpPath); err != nil {
		return "", engine.NewToolError(fmt.Sprintf("database dump artifact missing for account %s", account), err)
	}
	return dumpPath, nil
}

// ExecAccountRestorer invokes the platform's account-restore command as:
// <cmd> <args...> [granular flags] <account> <archive>.
type ExecAccountRestorer struct {
	Command string
	Args    []string
}

// Restore applies an account archive with the selected granular options.
func (r *ExecAccountRestorer) Restore(ctx context.Context, account, archivePath string, opts engine.RestoreOptions) error {
	var flags []string
	for flag, enabled := range map[string]bool{
		"--homedir":    opts.HomeDir,
		"--mail":       opts.Mail,
		"--dns":        opts.DNS,
		"--ssl":        opts.SSL,
		"--cron":       opts.Cron,
		"--subdomains": opts.Subdomains,
	} {
		if enabled {
			flags = append(flags, flag)
		}
	}
	sort.Strings(flags)
	args := append(append([]string{}, r.Args...), flags...)
	args = append(args, account, archivePath)

	if _, err := runCommand(ctx, r.Command, args); err != nil {
		return engine.NewToolError(fmt.Sprintf("account restore failed for %s", account), err)
	}
	return nil
}

// DirAccountLister resolves "all accounts" by listing the home root: each
// directory is one hosting account.
type DirAccountLister struct {
	HomeRoot string
}

// ListAccounts snapshots the current account set.
func (l *DirAccountLister) ListAccounts(ctx context.Context) ([]string, error) {
	dirents, err := os.ReadDir(l.HomeRoot)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to list home root", err)
	}

	var accounts []string
	for _, d := range dirents {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		accounts = append(accounts, d.Name())
	}
	sort.Strings(accounts)
	return accounts, nil
}

// AllowAllACL grants every identity access to every destination; the real
// rule is consumed from the platform when available.
type AllowAllACL struct{}

func (AllowAllACL) CanUseDestination(user, destinationID string) bool { return true }

func runCommand(ctx context.Context, command string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// Surface the tool's own output; it is the only diagnostic there is.
		return "", fmt.Errorf("%s: %s", err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
