package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"hostbackup/internal/archive"
	"hostbackup/internal/crypt"
	"hostbackup/internal/engine"
	"hostbackup/internal/logging"
	"hostbackup/internal/status"
	"hostbackup/internal/transport"
)

// DatabaseRestorer applies a database artifact restricted to databases owned
// by the target account.
type DatabaseRestorer interface {
	RestoreFile(ctx context.Context, account, dumpPath string) error
}

// RestoreOrchestrator sequences artifact retrieval, verification, database
// restoration and the platform account restore. Restore is not
// transactional: a failed step aborts the rest, but already-applied steps
// stay applied.
type RestoreOrchestrator struct {
	registry   DestinationResolver
	restorer   engine.AccountRestorer
	dbRestorer DatabaseRestorer
	encryptor  *crypt.Encryptor
	scratchDir string
	logger     *logging.Logger
}

// NewRestoreOrchestrator creates a restore orchestrator. dbRestorer and
// encryptor may be nil when those paths are unconfigured.
func NewRestoreOrchestrator(
	registry DestinationResolver,
	restorer engine.AccountRestorer,
	dbRestorer DatabaseRestorer,
	encryptor *crypt.Encryptor,
	scratchDir string,
	logger *logging.Logger,
) *RestoreOrchestrator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &RestoreOrchestrator{
		registry:   registry,
		restorer:   restorer,
		dbRestorer: dbRestorer,
		encryptor:  encryptor,
		scratchDir: scratchDir,
		logger:     logger,
	}
}

// RunRestore restores one account from a stored backup artifact. backupFile
// is the destination-relative path "{account}/{artifact-name}".
func (o *RestoreOrchestrator) RunRestore(ctx context.Context, destinationID, backupFile string, opts engine.RestoreOptions, user, requestor string, st *status.Writer) *engine.RestoreResult {
	res := &engine.RestoreResult{
		BackupFile: backupFile,
		StartedAt:  time.Now(),
	}
	logf := func(format string, args ...interface{}) {
		if st != nil {
			st.Logf(format, args...)
		}
	}
	fail := func(format string, args ...interface{}) *engine.RestoreResult {
		res.Success = false
		res.Message = fmt.Sprintf(format, args...)
		res.FinishedAt = time.Now()
		logf("restore failed: %s", res.Message)
		return res
	}

	_, tr, err := o.registry.Resolve(ctx, destinationID)
	if err != nil {
		return fail("destination %s unavailable: %v", destinationID, err)
	}

	workDir := filepath.Join(o.scratchDir, fmt.Sprintf("restore-%d", res.StartedAt.UnixNano()))
	if err := os.MkdirAll(workDir, 0700); err != nil {
		return fail("cannot create work area: %v", err)
	}
	defer os.RemoveAll(workDir)

	// (a) retrieve the artifact; local destinations are referenced in place.
	archivePath, err := o.retrieve(ctx, tr, destinationID, backupFile, workDir, logf)
	if err != nil {
		return fail("retrieval failed: %v", err)
	}

	// Transparent decrypt of encrypted-at-rest artifacts.
	if crypt.IsEncrypted(archivePath) {
		if o.encryptor == nil {
			return fail("artifact is encrypted but no passphrase is configured")
		}
		plainPath := filepath.Join(workDir, "decrypted-"+filepath.Base(backupFile))
		if err := o.encryptor.DecryptFile(archivePath, plainPath); err != nil {
			return fail("artifact decryption failed: %v", err)
		}
		archivePath = plainPath
	}

	// (b) verify before touching any live account data.
	logf("verifying archive %s", backupFile)
	if err := archive.VerifyAccountArchive(archivePath); err != nil {
		return fail("archive verification failed: %v", err)
	}

	account, err := archive.ArchiveRoot(archivePath)
	if err != nil || account == "" {
		// Fall back to the path convention {account}/{artifact}.
		account = path.Dir(backupFile)
	}
	res.Account = account

	// (c) companion database artifact.
	if opts.DBFile != "" {
		if o.dbRestorer == nil {
			return fail("backup references a database artifact but database restore is not configured")
		}
		logf("retrieving database artifact %s", opts.DBFile)
		dbPath, err := o.retrieve(ctx, tr, destinationID, opts.DBFile, workDir, logf)
		if err != nil {
			return fail("database artifact retrieval failed: %v", err)
		}
		if crypt.IsEncrypted(dbPath) {
			if o.encryptor == nil {
				return fail("database artifact is encrypted but no passphrase is configured")
			}
			plainPath := filepath.Join(workDir, "decrypted-db-"+filepath.Base(opts.DBFile))
			if err := o.encryptor.DecryptFile(dbPath, plainPath); err != nil {
				return fail("database artifact decryption failed: %v", err)
			}
			dbPath = plainPath
		}
		logf("restoring databases for %s", account)
		if err := o.dbRestorer.RestoreFile(ctx, account, dbPath); err != nil {
			return fail("database restore failed: %v", err)
		}
	}

	// (d) platform account restore with the caller's granular options.
	logf("restoring account %s", account)
	restoreStart := time.Now()
	err = o.restorer.Restore(ctx, account, archivePath, opts)
	o.logger.LogToolInvocation("account-restore", account, time.Since(restoreStart), err)
	if err != nil {
		return fail("account restore failed: %v", err)
	}

	res.Success = true
	res.Message = fmt.Sprintf("account %s restored from %s", account, backupFile)
	res.FinishedAt = time.Now()
	logf("restore of %s completed", account)
	return res
}

// retrieve makes the artifact available locally. For local-filesystem
// destinations this is a direct path reference with no copy; remote
// destinations download into the work area.
func (o *RestoreOrchestrator) retrieve(ctx context.Context, tr transport.Transport, destinationID, remoteFile, workDir string, logf func(string, ...interface{})) (string, error) {
	if lp, ok := tr.(transport.LocalPather); ok {
		localPath := lp.LocalPath(remoteFile)
		if _, err := os.Stat(localPath); err != nil {
			return "", engine.NewNotFoundError("backup file not found at destination: "+remoteFile, err)
		}
		return localPath, nil
	}

	localPath := filepath.Join(workDir, filepath.Base(remoteFile))
	logf("downloading %s from %s", remoteFile, destinationID)
	dlStart := time.Now()
	err := tr.Download(ctx, remoteFile, localPath)
	o.logger.LogTransfer("download", destinationID, remoteFile, fileSize(localPath), time.Since(dlStart), err)
	if err != nil {
		return "", err
	}
	return localPath, nil
}
