// Package dbrestore applies database dump artifacts during account restore,
// restricted to the databases owned by the target account. A dump may be a
// plain SQL file, a gzip/zstd/lz4-compressed SQL file, or a tar archive of
// per-database SQL files; the sub-format is detected, never configured.
package dbrestore

import (
	"archive/tar"
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"path"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"hostbackup/internal/archive"
	"hostbackup/internal/engine"
	"hostbackup/internal/logging"
)

// Result summarizes one dump application.
type Result struct {
	Executed         int
	Skipped          int
	SkippedDatabases []string
}

// Restorer executes account-scoped SQL dumps against a database server.
type Restorer struct {
	db     *sql.DB
	logger *logging.Logger
}

// New creates a restorer over an open database handle.
func New(db *sql.DB, logger *logging.Logger) *Restorer {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Restorer{db: db, logger: logger}
}

// Open connects to a MySQL server with the given DSN and returns a restorer.
func Open(dsn string, logger *logging.Logger) (*Restorer, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to open database connection", err)
	}
	return New(db, logger), nil
}

// RestoreFile applies a dump artifact for one account. Statements targeting
// databases the account does not own are skipped, never executed.
func (r *Restorer) RestoreFile(ctx context.Context, account, dumpPath string) error {
	_, err := r.RestoreFileReport(ctx, account, dumpPath)
	return err
}

// RestoreFileReport is RestoreFile with statement accounting.
func (r *Restorer) RestoreFileReport(ctx context.Context, account, dumpPath string) (*Result, error) {
	reader, format, err := archive.OpenReader(dumpPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	result := &Result{}

	if format == archive.FormatTar {
		if err := r.restoreTar(ctx, account, reader, result); err != nil {
			return result, err
		}
	} else {
		// After decompression the stream may itself be a tar archive.
		br := bufio.NewReader(reader)
		if head, err := br.Peek(262); err == nil && len(head) >= 262 && string(head[257:262]) == "ustar" {
			if err := r.restoreTar(ctx, account, br, result); err != nil {
				return result, err
			}
		} else if err := r.restoreStream(ctx, account, br, result); err != nil {
			return result, err
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"account":  account,
		"executed": result.Executed,
		"skipped":  result.Skipped,
	}).Info("Database restore applied")
	return result, nil
}

// restoreTar walks a tar of per-database SQL files. Each member is named
// after the database it dumps; foreign members are skipped wholesale since a
// single-database dump carries no USE statement to scope it.
func (r *Restorer) restoreTar(ctx context.Context, account string, reader io.Reader, result *Result) error {
	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return engine.NewCorruptionError("database artifact has a corrupt tar stream", err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".sql") {
			continue
		}
		db := strings.TrimSuffix(path.Base(hdr.Name), ".sql")
		if !accountOwns(account, db) {
			result.SkippedDatabases = appendUnique(result.SkippedDatabases, db)
			result.Skipped++
			continue
		}
		if err := r.restoreStream(ctx, account, tr, result); err != nil {
			return err
		}
	}
}

// restoreStream executes the statements of one SQL dump. Ownership tracking
// follows USE and CREATE DATABASE statements; while the current database is
// foreign, every statement is dropped.
func (r *Restorer) restoreStream(ctx context.Context, account string, reader io.Reader, result *Result) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var stmt strings.Builder
	currentDB := ""
	owned := true // session preamble before any USE runs unconditionally

	flush := func() error {
		text := strings.TrimSpace(stmt.String())
		stmt.Reset()
		if text == "" {
			return nil
		}

		if db, ok := parseUse(text); ok {
			currentDB = db
			owned = accountOwns(account, db)
			if !owned {
				result.SkippedDatabases = appendUnique(result.SkippedDatabases, db)
				result.Skipped++
				return nil
			}
		} else if db, ok := parseCreateDatabase(text); ok {
			if !accountOwns(account, db) {
				result.SkippedDatabases = appendUnique(result.SkippedDatabases, db)
				result.Skipped++
				return nil
			}
		} else if !owned {
			result.Skipped++
			return nil
		}

		if _, err := r.db.ExecContext(ctx, text); err != nil {
			return engine.NewToolError(
				fmt.Sprintf("failed to execute statement for database %s", currentDB), err)
		}
		result.Executed++
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}

		stmt.WriteString(line)
		stmt.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return engine.NewCorruptionError("failed to read database dump", err)
	}
	return flush()
}

// accountOwns reports whether a database belongs to the account: the name
// equals the account or carries the "account_" prefix, the hosting-panel
// naming convention.
func accountOwns(account, db string) bool {
	return db == account || strings.HasPrefix(db, account+"_")
}

func parseUse(stmt string) (string, bool) {
	fields := strings.Fields(stmt)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "USE") {
		return "", false
	}
	return unquoteIdentifier(strings.TrimSuffix(fields[1], ";")), true
}

func parseCreateDatabase(stmt string) (string, bool) {
	upper := strings.ToUpper(stmt)
	if !strings.HasPrefix(upper, "CREATE DATABASE") {
		return "", false
	}
	rest := strings.TrimSpace(stmt[len("CREATE DATABASE"):])
	if strings.HasPrefix(strings.ToUpper(rest), "IF NOT EXISTS") {
		rest = strings.TrimSpace(rest[len("IF NOT EXISTS"):])
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	return unquoteIdentifier(strings.TrimSuffix(fields[0], ";")), true
}

func unquoteIdentifier(id string) string {
	return strings.Trim(id, "`\"'")
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
