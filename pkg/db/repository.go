package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/baremetal-kit/nodeprep/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for deployment records
type Repository struct {
	db *sql.DB
}

// NewRepository opens the database at dbPath and ensures the schema exists.
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new deployment record
func (r *Repository) Create(d *Deployment) error {
	slog.Info("database_create_deployment", "host", d.Host, "status", d.Status)

	query := `
		INSERT INTO deployments (host, image_url, checksum, image_path, sha256, size_bytes, status, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		d.Host, d.ImageURL, d.Checksum, d.ImagePath,
		d.SHA256, d.SizeBytes, d.Status, d.ErrorKind, d.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "host", d.Host, "error", err)
		return errors.Wrap(err, "failed to insert deployment")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "host", d.Host, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	d.ID = id

	slog.Info("database_deployment_created", "host", d.Host, "deployment_id", d.ID, "status", d.Status)
	return nil
}

// GetByHost retrieves a deployment by host identifier. Returns nil when no
// record exists.
func (r *Repository) GetByHost(host string) (*Deployment, error) {
	query := `
		SELECT id, host, image_url, checksum, image_path, sha256, size_bytes,
		       status, error_kind, error_message, created_at, updated_at
		FROM deployments WHERE host = ?
	`
	d, err := scanDeployment(r.db.QueryRow(query, host))
	if err == sql.ErrNoRows {
		slog.Info("database_deployment_not_found", "host", host)
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "host", host, "error", err)
		return nil, errors.Wrap(err, "failed to query deployment")
	}

	slog.Info("database_deployment_found", "host", host, "deployment_id", d.ID, "status", d.Status)
	return d, nil
}

// Update updates an existing deployment record
func (r *Repository) Update(d *Deployment) error {
	slog.Info("database_update_deployment", "deployment_id", d.ID, "host", d.Host, "status", d.Status)

	query := `
		UPDATE deployments
		SET image_url = ?, checksum = ?, image_path = ?, sha256 = ?, size_bytes = ?,
		    status = ?, error_kind = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		d.ImageURL, d.Checksum, d.ImagePath, d.SHA256, d.SizeBytes,
		d.Status, d.ErrorKind, d.ErrorMessage, d.ID)
	if err != nil {
		slog.Error("database_update_failed", "deployment_id", d.ID, "error", err)
		return errors.Wrap(err, "failed to update deployment")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_deployment_not_found_for_update", "deployment_id", d.ID)
		return fmt.Errorf("deployment not found: id=%d", d.ID)
	}

	return nil
}

// UpdateStatus updates the status and failure fields only
func (r *Repository) UpdateStatus(id int64, status, errorKind, errorMessage string) error {
	slog.Info("database_update_status", "deployment_id", id, "status", status, "error_kind", errorKind)

	query := `UPDATE deployments SET status = ?, error_kind = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.Exec(query, status, errorKind, errorMessage, id)
	if err != nil {
		slog.Error("database_status_update_failed", "deployment_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}

	return nil
}

// List retrieves all deployments, newest first
func (r *Repository) List() ([]*Deployment, error) {
	query := `
		SELECT id, host, image_url, checksum, image_path, sha256, size_bytes,
		       status, error_kind, error_message, created_at, updated_at
		FROM deployments ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list deployments")
	}
	defer rows.Close()

	var deployments []*Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		deployments = append(deployments, d)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "deployment_count", len(deployments))
	return deployments, nil
}

// Delete deletes a deployment by ID
func (r *Repository) Delete(id int64) error {
	slog.Info("database_delete_deployment", "deployment_id", id)

	query := `DELETE FROM deployments WHERE id = ?`
	_, err := r.db.Exec(query, id)
	if err != nil {
		slog.Error("database_delete_failed", "deployment_id", id, "error", err)
		return errors.Wrap(err, "failed to delete deployment")
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (*Deployment, error) {
	var d Deployment
	var checksum, imagePath, sha256Hex, errorKind, errorMessage sql.NullString
	var sizeBytes sql.NullInt64

	err := row.Scan(
		&d.ID, &d.Host, &d.ImageURL, &checksum, &imagePath, &sha256Hex, &sizeBytes,
		&d.Status, &errorKind, &errorMessage, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	d.Checksum = checksum.String
	d.ImagePath = imagePath.String
	d.SHA256 = sha256Hex.String
	d.SizeBytes = sizeBytes.Int64
	d.ErrorKind = errorKind.String
	d.ErrorMessage = errorMessage.String
	return &d, nil
}
