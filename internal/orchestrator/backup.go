package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hostbackup/internal/crypt"
	"hostbackup/internal/engine"
	"hostbackup/internal/logging"
	"hostbackup/internal/manifest"
	"hostbackup/internal/schedule"
	"hostbackup/internal/status"
	"hostbackup/internal/transport"
)

// BackupOrchestrator sequences packaging, optional hot database dump,
// upload and manifest bookkeeping for each account in a job. Per-account
// failures are carried in the result; one broken account never aborts its
// siblings.
type BackupOrchestrator struct {
	packager   engine.Packager
	dbTool     engine.DBBackupTool
	dbMethod   engine.DatabaseMethod
	registry   DestinationResolver
	manifests  *manifest.Store
	schedules  *schedule.Store
	pruner     *Pruner
	encryptor  *crypt.Encryptor
	scratchDir string
	logger     *logging.Logger
}

// NewBackupOrchestrator creates a backup orchestrator. encryptor may be nil
// when no destination requests at-rest encryption.
func NewBackupOrchestrator(
	packager engine.Packager,
	dbTool engine.DBBackupTool,
	dbMethod engine.DatabaseMethod,
	registry DestinationResolver,
	manifests *manifest.Store,
	schedules *schedule.Store,
	pruner *Pruner,
	encryptor *crypt.Encryptor,
	scratchDir string,
	logger *logging.Logger,
) *BackupOrchestrator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &BackupOrchestrator{
		packager:   packager,
		dbTool:     dbTool,
		dbMethod:   dbMethod,
		registry:   registry,
		manifests:  manifests,
		schedules:  schedules,
		pruner:     pruner,
		encryptor:  encryptor,
		scratchDir: scratchDir,
		logger:     logger,
	}
}

// RunBackup backs up each account to the destination, appending a manifest
// entry per success and pruning excess entries for scheduled runs. A
// scheduleID of "" records under the reserved manual manifest, which is
// exempt from pruning.
func (o *BackupOrchestrator) RunBackup(ctx context.Context, jobID string, accounts []string, destinationID, user, requestor, scheduleID string, st *status.Writer) *engine.JobResult {
	result := &engine.JobResult{
		JobID: jobID,
		Kind:  "backup",
	}

	manifestID := scheduleID
	if manifestID == "" {
		manifestID = engine.ManualScheduleID
	}

	dest, tr, err := o.registry.Resolve(ctx, destinationID)
	if err != nil {
		// Destination resolution failure fails every account identically.
		for _, account := range accounts {
			result.Accounts = append(result.Accounts, engine.AccountResult{
				Account:    account,
				Success:    false,
				Message:    fmt.Sprintf("destination %s unavailable: %v", destinationID, err),
				StartedAt:  time.Now(),
				FinishedAt: time.Now(),
			})
		}
		if st != nil {
			st.Logf("backup aborted: destination %s unavailable: %v", destinationID, err)
		}
		return result
	}

	for _, account := range accounts {
		res := o.backupAccount(ctx, account, dest, tr, user, manifestID, st)
		result.Accounts = append(result.Accounts, res)
	}
	return result
}

func (o *BackupOrchestrator) backupAccount(ctx context.Context, account string, dest *transport.Destination, tr transport.Transport, user, manifestID string, st *status.Writer) engine.AccountResult {
	res := engine.AccountResult{
		Account:   account,
		StartedAt: time.Now(),
	}
	logf := func(format string, args ...interface{}) {
		if st != nil {
			st.Logf(format, args...)
		}
	}

	workDir := filepath.Join(o.scratchDir,
		fmt.Sprintf("backup-%s-%d", account, res.StartedAt.UnixNano()))
	if err := os.MkdirAll(workDir, 0700); err != nil {
		res.Success = false
		res.Message = fmt.Sprintf("cannot create work area: %v", err)
		res.FinishedAt = time.Now()
		return res
	}
	defer os.RemoveAll(workDir)

	// (a) primary archive
	logf("packaging account %s", account)
	pkgStart := time.Now()
	archivePath, err := o.packager.Package(ctx, account, workDir, engine.PackageOptions{
		SkipDatabases: o.dbMethod == engine.DatabaseMethodSkip,
	})
	o.logger.LogToolInvocation("packager", account, time.Since(pkgStart), err)
	if err != nil {
		res.Success = false
		res.Message = fmt.Sprintf("packager failed: %v", err)
		res.FinishedAt = time.Now()
		logf("packaging failed for %s: %v", account, err)
		return res
	}

	// (b) hot database dump; its failure degrades the account to a warning,
	// never to a failure, as long as the primary archive exists.
	var dbPath string
	if o.dbMethod == engine.DatabaseMethodHotBackup && o.dbTool != nil {
		logf("dumping databases for %s", account)
		dbStart := time.Now()
		dbPath, err = o.dbTool.DumpDatabases(ctx, account, workDir)
		o.logger.LogToolInvocation("db-backup", account, time.Since(dbStart), err)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("database dump failed: %v", err))
			logf("database dump failed for %s: %v", account, err)
			dbPath = ""
		}
	}

	// Optional at-rest encryption before upload.
	if dest.Encrypt {
		if o.encryptor == nil {
			res.Success = false
			res.Message = "destination requires encryption but no passphrase is configured"
			res.FinishedAt = time.Now()
			return res
		}
		if archivePath, err = o.encryptArtifact(archivePath); err != nil {
			res.Success = false
			res.Message = fmt.Sprintf("artifact encryption failed: %v", err)
			res.FinishedAt = time.Now()
			return res
		}
		if dbPath != "" {
			if dbPath, err = o.encryptArtifact(dbPath); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("database artifact encryption failed, not uploaded: %v", err))
				dbPath = ""
			}
		}
	}

	// (c) upload
	archiveName := filepath.Base(archivePath)
	archiveSize := fileSize(archivePath)
	logf("uploading %s for %s (%d bytes)", archiveName, account, archiveSize)
	upStart := time.Now()
	err = tr.Upload(ctx, archivePath, remotePath(account, archiveName))
	o.logger.LogTransfer("upload", dest.ID, remotePath(account, archiveName), archiveSize, time.Since(upStart), err)
	if err != nil {
		res.Success = false
		res.Message = fmt.Sprintf("upload failed: %v", err)
		res.FinishedAt = time.Now()
		logf("upload failed for %s: %v", account, err)
		return res
	}

	dbName := ""
	var dbSize int64
	if dbPath != "" {
		dbName = filepath.Base(dbPath)
		dbSize = fileSize(dbPath)
		logf("uploading %s for %s (%d bytes)", dbName, account, dbSize)
		dbStart := time.Now()
		err = tr.Upload(ctx, dbPath, remotePath(account, dbName))
		o.logger.LogTransfer("upload", dest.ID, remotePath(account, dbName), dbSize, time.Since(dbStart), err)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("database artifact upload failed: %v", err))
			dbName = ""
			dbSize = 0
		}
	}

	// (d) manifest entry
	entry := manifest.Entry{
		Account:   account,
		File:      archiveName,
		DBFile:    dbName,
		Timestamp: time.Now(),
		Size:      archiveSize + dbSize,
	}
	retention := o.scheduleRetention(manifestID)
	if err := o.manifests.Append(manifestID, dest.ID, retention, entry); err != nil {
		// The artifact is uploaded but untracked; surface loudly.
		res.Success = false
		res.Message = fmt.Sprintf("uploaded but failed to record manifest entry: %v", err)
		res.FinishedAt = time.Now()
		return res
	}

	// (e) retention, scheduled backups only
	if manifestID != engine.ManualScheduleID {
		if err := o.pruner.Prune(ctx, manifestID, account); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("retention pruning incomplete: %v", err))
		}
	}

	res.Success = true
	res.Message = "backup completed"
	if len(res.Warnings) > 0 {
		res.Message = "backup completed with warnings"
	}
	res.ArchivePath = remotePath(account, archiveName)
	res.ArchiveSize = archiveSize
	if dbName != "" {
		res.DBPath = remotePath(account, dbName)
		res.DBSize = dbSize
	}
	res.FinishedAt = time.Now()
	logf("backup of %s finished: %s", account, res.Message)
	return res
}

// scheduleRetention reads the retention from the schedule definition.
// Manual backups and deleted schedules default to unlimited.
func (o *BackupOrchestrator) scheduleRetention(manifestID string) int {
	if manifestID == engine.ManualScheduleID || o.schedules == nil {
		return 0
	}
	s, err := o.schedules.Get(manifestID)
	if err != nil {
		return 0
	}
	return s.Retention
}

func (o *BackupOrchestrator) encryptArtifact(path string) (string, error) {
	encPath := path + ".enc"
	if err := o.encryptor.EncryptFile(path, encPath); err != nil {
		return "", err
	}
	return encPath, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
