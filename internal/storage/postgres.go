package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Anirudh7369/UFDR-Agent/internal/config"
	"github.com/Anirudh7369/UFDR-Agent/internal/models"
)

// PostgresStore persists domain records in PostgreSQL. Each batch writes in
// one transaction and rows upsert on (job_id, natural_key), so re-ingesting
// the same archive updates rows instead of duplicating them. Call parties,
// message parties and message attachments live in child tables that are
// replaced wholesale whenever their parent row is upserted.
type PostgresStore struct {
	db *sql.DB
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ufdr_apps (
		id BIGSERIAL PRIMARY KEY,
		job_id TEXT NOT NULL,
		natural_key TEXT NOT NULL,
		app_identifier TEXT NOT NULL,
		app_name TEXT,
		app_version TEXT,
		app_guid TEXT,
		install_timestamp BIGINT,
		install_timestamp_dt TIMESTAMPTZ,
		last_launched_timestamp BIGINT,
		last_launched_dt TIMESTAMPTZ,
		decoding_status TEXT,
		is_emulatable BOOLEAN NOT NULL DEFAULT FALSE,
		operation_mode TEXT,
		deleted_state TEXT,
		decoding_confidence TEXT,
		permissions TEXT[],
		categories TEXT[],
		directory_paths TEXT[],
		raw_xml TEXT,
		snapshot TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (job_id, natural_key)
	)`,
	`CREATE TABLE IF NOT EXISTS ufdr_call_logs (
		id BIGSERIAL PRIMARY KEY,
		job_id TEXT NOT NULL,
		natural_key TEXT NOT NULL,
		call_id TEXT NOT NULL,
		key_synthesized BOOLEAN NOT NULL DEFAULT FALSE,
		source_app TEXT,
		direction TEXT,
		call_type TEXT,
		status TEXT,
		call_timestamp BIGINT,
		call_timestamp_dt TIMESTAMPTZ,
		duration_seconds INTEGER,
		duration_string TEXT,
		country_code TEXT,
		network_code TEXT,
		network_name TEXT,
		account TEXT,
		is_video_call BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_state TEXT,
		decoding_confidence TEXT,
		from_identifier TEXT,
		from_name TEXT,
		from_role TEXT,
		from_is_owner BOOLEAN,
		to_identifier TEXT,
		to_name TEXT,
		to_role TEXT,
		to_is_owner BOOLEAN,
		raw_xml TEXT,
		snapshot TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (job_id, natural_key)
	)`,
	`CREATE TABLE IF NOT EXISTS ufdr_call_parties (
		id BIGSERIAL PRIMARY KEY,
		call_row_id BIGINT NOT NULL REFERENCES ufdr_call_logs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		identifier TEXT,
		name TEXT,
		role TEXT,
		is_phone_owner BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS ufdr_messages (
		id BIGSERIAL PRIMARY KEY,
		job_id TEXT NOT NULL,
		natural_key TEXT NOT NULL,
		message_id TEXT NOT NULL,
		thread_id TEXT,
		key_synthesized BOOLEAN NOT NULL DEFAULT FALSE,
		source_app TEXT NOT NULL,
		body TEXT,
		message_type TEXT,
		platform TEXT,
		message_timestamp BIGINT,
		message_timestamp_dt TIMESTAMPTZ,
		deleted_state TEXT,
		decoding_confidence TEXT,
		from_identifier TEXT,
		from_name TEXT,
		from_role TEXT,
		from_is_owner BOOLEAN,
		to_identifier TEXT,
		to_name TEXT,
		to_role TEXT,
		to_is_owner BOOLEAN,
		has_attachments BOOLEAN NOT NULL DEFAULT FALSE,
		attachment_count INTEGER NOT NULL DEFAULT 0,
		raw_xml TEXT,
		snapshot TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (job_id, natural_key)
	)`,
	`CREATE TABLE IF NOT EXISTS ufdr_message_parties (
		id BIGSERIAL PRIMARY KEY,
		message_row_id BIGINT NOT NULL REFERENCES ufdr_messages(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		identifier TEXT,
		name TEXT,
		role TEXT,
		is_phone_owner BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS ufdr_message_attachments (
		id BIGSERIAL PRIMARY KEY,
		message_row_id BIGINT NOT NULL REFERENCES ufdr_messages(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		attachment_type TEXT,
		filename TEXT,
		file_path TEXT,
		file_size BIGINT,
		content_type TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS ufdr_locations (
		id BIGSERIAL PRIMARY KEY,
		job_id TEXT NOT NULL,
		natural_key TEXT NOT NULL,
		source_app TEXT,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		altitude DOUBLE PRECISION,
		accuracy DOUBLE PRECISION,
		speed DOUBLE PRECISION,
		bearing DOUBLE PRECISION,
		location_type TEXT,
		category TEXT,
		address TEXT,
		city TEXT,
		state TEXT,
		country TEXT,
		postal_code TEXT,
		activity_type TEXT,
		activity_confidence DOUBLE PRECISION,
		location_timestamp BIGINT,
		location_timestamp_dt TIMESTAMPTZ,
		deleted_state TEXT,
		decoding_confidence TEXT,
		raw_xml TEXT,
		snapshot TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (job_id, natural_key)
	)`,
	`CREATE TABLE IF NOT EXISTS ufdr_browsing_history (
		id BIGSERIAL PRIMARY KEY,
		job_id TEXT NOT NULL,
		natural_key TEXT NOT NULL,
		entry_id TEXT,
		entry_type TEXT NOT NULL,
		source_browser TEXT,
		url TEXT,
		title TEXT,
		search_query TEXT,
		bookmark_path TEXT,
		visit_count INTEGER,
		url_cache_file TEXT,
		last_visited BIGINT,
		last_visited_dt TIMESTAMPTZ,
		deleted_state TEXT,
		decoding_confidence TEXT,
		raw_xml TEXT,
		snapshot TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (job_id, natural_key)
	)`,
}

// NewPostgresStore connects to PostgreSQL, verifies the connection and
// creates the record tables if they do not exist.
func NewPostgresStore(cfg config.StorageConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

const upsertAppSQL = `
INSERT INTO ufdr_apps (
	job_id, natural_key, app_identifier, app_name, app_version, app_guid,
	install_timestamp, install_timestamp_dt, last_launched_timestamp, last_launched_dt,
	decoding_status, is_emulatable, operation_mode, deleted_state, decoding_confidence,
	permissions, categories, directory_paths, raw_xml, snapshot
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (job_id, natural_key) DO UPDATE SET
	app_identifier = EXCLUDED.app_identifier,
	app_name = EXCLUDED.app_name,
	app_version = EXCLUDED.app_version,
	app_guid = EXCLUDED.app_guid,
	install_timestamp = EXCLUDED.install_timestamp,
	install_timestamp_dt = EXCLUDED.install_timestamp_dt,
	last_launched_timestamp = EXCLUDED.last_launched_timestamp,
	last_launched_dt = EXCLUDED.last_launched_dt,
	decoding_status = EXCLUDED.decoding_status,
	is_emulatable = EXCLUDED.is_emulatable,
	operation_mode = EXCLUDED.operation_mode,
	deleted_state = EXCLUDED.deleted_state,
	decoding_confidence = EXCLUDED.decoding_confidence,
	permissions = EXCLUDED.permissions,
	categories = EXCLUDED.categories,
	directory_paths = EXCLUDED.directory_paths,
	raw_xml = EXCLUDED.raw_xml,
	snapshot = EXCLUDED.snapshot`

func (s *PostgresStore) StoreApps(ctx context.Context, jobID string, apps []models.App) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, a := range apps {
			_, err := tx.ExecContext(ctx, upsertAppSQL,
				jobID, a.Key(), a.Identifier, a.Name, a.Version, a.GUID,
				nullInt64(a.InstallTimestamp), nullTime(a.InstallTime),
				nullInt64(a.LastLaunchedTimestamp), nullTime(a.LastLaunchedTime),
				a.DecodingStatus, a.IsEmulatable, a.OperationMode, a.DeletedState, a.DecodingConfidence,
				pq.Array(a.Permissions), pq.Array(a.Categories), pq.Array(a.DirectoryPaths),
				a.RawXML, a.Snapshot)
			if err != nil {
				return fmt.Errorf("failed to upsert app %q: %w", a.Identifier, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetApps(ctx context.Context, jobID string, limit, offset int) ([]models.App, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_identifier, app_name, app_version, app_guid,
			install_timestamp, install_timestamp_dt, last_launched_timestamp, last_launched_dt,
			decoding_status, is_emulatable, operation_mode, deleted_state, decoding_confidence,
			permissions, categories, directory_paths, raw_xml, snapshot
		FROM ufdr_apps WHERE job_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		jobID, limitArg(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query apps: %w", err)
	}
	defer rows.Close()

	var out []models.App
	for rows.Next() {
		a := models.App{JobID: jobID}
		var installTS, launchedTS sql.NullInt64
		var installDT, launchedDT sql.NullTime
		if err := rows.Scan(&a.Identifier, &a.Name, &a.Version, &a.GUID,
			&installTS, &installDT, &launchedTS, &launchedDT,
			&a.DecodingStatus, &a.IsEmulatable, &a.OperationMode, &a.DeletedState, &a.DecodingConfidence,
			pq.Array(&a.Permissions), pq.Array(&a.Categories), pq.Array(&a.DirectoryPaths),
			&a.RawXML, &a.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan app row: %w", err)
		}
		a.InstallTimestamp = int64Ptr(installTS)
		a.InstallTime = timePtr(installDT)
		a.LastLaunchedTimestamp = int64Ptr(launchedTS)
		a.LastLaunchedTime = timePtr(launchedDT)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountApps(ctx context.Context, jobID string) (int, error) {
	return s.count(ctx, "ufdr_apps", jobID)
}

const upsertCallSQL = `
INSERT INTO ufdr_call_logs (
	job_id, natural_key, call_id, key_synthesized, source_app, direction, call_type, status,
	call_timestamp, call_timestamp_dt, duration_seconds, duration_string,
	country_code, network_code, network_name, account, is_video_call,
	deleted_state, decoding_confidence,
	from_identifier, from_name, from_role, from_is_owner,
	to_identifier, to_name, to_role, to_is_owner,
	raw_xml, snapshot
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)
ON CONFLICT (job_id, natural_key) DO UPDATE SET
	call_id = EXCLUDED.call_id,
	key_synthesized = EXCLUDED.key_synthesized,
	source_app = EXCLUDED.source_app,
	direction = EXCLUDED.direction,
	call_type = EXCLUDED.call_type,
	status = EXCLUDED.status,
	call_timestamp = EXCLUDED.call_timestamp,
	call_timestamp_dt = EXCLUDED.call_timestamp_dt,
	duration_seconds = EXCLUDED.duration_seconds,
	duration_string = EXCLUDED.duration_string,
	country_code = EXCLUDED.country_code,
	network_code = EXCLUDED.network_code,
	network_name = EXCLUDED.network_name,
	account = EXCLUDED.account,
	is_video_call = EXCLUDED.is_video_call,
	deleted_state = EXCLUDED.deleted_state,
	decoding_confidence = EXCLUDED.decoding_confidence,
	from_identifier = EXCLUDED.from_identifier,
	from_name = EXCLUDED.from_name,
	from_role = EXCLUDED.from_role,
	from_is_owner = EXCLUDED.from_is_owner,
	to_identifier = EXCLUDED.to_identifier,
	to_name = EXCLUDED.to_name,
	to_role = EXCLUDED.to_role,
	to_is_owner = EXCLUDED.to_is_owner,
	raw_xml = EXCLUDED.raw_xml,
	snapshot = EXCLUDED.snapshot
RETURNING id`

func (s *PostgresStore) StoreCallLogs(ctx context.Context, jobID string, calls []models.CallLog) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range calls {
			fromID, fromName, fromRole, fromOwner := partyCols(c.From)
			toID, toName, toRole, toOwner := partyCols(c.To)

			var rowID int64
			err := tx.QueryRowContext(ctx, upsertCallSQL,
				jobID, c.Key(), c.CallID, c.KeySynthesized, c.SourceApp, c.Direction, c.CallType, c.Status,
				nullInt64(c.Timestamp), nullTime(c.Time), nullInt(c.DurationSeconds), c.DurationString,
				c.CountryCode, c.NetworkCode, c.NetworkName, c.Account, c.IsVideoCall,
				c.DeletedState, c.DecodingConfidence,
				fromID, fromName, fromRole, fromOwner,
				toID, toName, toRole, toOwner,
				c.RawXML, c.Snapshot).Scan(&rowID)
			if err != nil {
				return fmt.Errorf("failed to upsert call %q: %w", c.CallID, err)
			}

			if _, err := tx.ExecContext(ctx,
				`DELETE FROM ufdr_call_parties WHERE call_row_id = $1`, rowID); err != nil {
				return fmt.Errorf("failed to clear call parties: %w", err)
			}
			for i, p := range c.Parties {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO ufdr_call_parties (call_row_id, position, identifier, name, role, is_phone_owner)
					VALUES ($1,$2,$3,$4,$5,$6)`,
					rowID, i, p.Identifier, p.Name, p.Role, p.IsPhoneOwner); err != nil {
					return fmt.Errorf("failed to insert call party: %w", err)
				}
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetCallLogs(ctx context.Context, jobID string, limit, offset int) ([]models.CallLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, call_id, key_synthesized, source_app, direction, call_type, status,
			call_timestamp, call_timestamp_dt, duration_seconds, duration_string,
			country_code, network_code, network_name, account, is_video_call,
			deleted_state, decoding_confidence,
			from_identifier, from_name, from_role, from_is_owner,
			to_identifier, to_name, to_role, to_is_owner,
			raw_xml, snapshot
		FROM ufdr_call_logs WHERE job_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		jobID, limitArg(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query call logs: %w", err)
	}
	defer rows.Close()

	var out []models.CallLog
	var rowIDs []int64
	rowIndex := make(map[int64]int)
	for rows.Next() {
		c := models.CallLog{JobID: jobID}
		var rowID int64
		var ts sql.NullInt64
		var dt sql.NullTime
		var dur sql.NullInt64
		var fromID, fromName, fromRole, toID, toName, toRole sql.NullString
		var fromOwner, toOwner sql.NullBool
		if err := rows.Scan(&rowID, &c.CallID, &c.KeySynthesized, &c.SourceApp, &c.Direction, &c.CallType, &c.Status,
			&ts, &dt, &dur, &c.DurationString,
			&c.CountryCode, &c.NetworkCode, &c.NetworkName, &c.Account, &c.IsVideoCall,
			&c.DeletedState, &c.DecodingConfidence,
			&fromID, &fromName, &fromRole, &fromOwner,
			&toID, &toName, &toRole, &toOwner,
			&c.RawXML, &c.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan call row: %w", err)
		}
		c.Timestamp = int64Ptr(ts)
		c.Time = timePtr(dt)
		c.DurationSeconds = intPtr(dur)
		c.From = partyFromCols(fromID, fromName, fromRole, fromOwner)
		c.To = partyFromCols(toID, toName, toRole, toOwner)
		rowIndex[rowID] = len(out)
		rowIDs = append(rowIDs, rowID)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(rowIDs) == 0 {
		return out, nil
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT call_row_id, identifier, name, role, is_phone_owner
		FROM ufdr_call_parties WHERE call_row_id = ANY($1) ORDER BY call_row_id, position`,
		pq.Array(rowIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query call parties: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var rowID int64
		var p models.Party
		if err := prows.Scan(&rowID, &p.Identifier, &p.Name, &p.Role, &p.IsPhoneOwner); err != nil {
			return nil, fmt.Errorf("failed to scan call party row: %w", err)
		}
		if i, ok := rowIndex[rowID]; ok {
			out[i].Parties = append(out[i].Parties, p)
		}
	}
	return out, prows.Err()
}

func (s *PostgresStore) CountCallLogs(ctx context.Context, jobID string) (int, error) {
	return s.count(ctx, "ufdr_call_logs", jobID)
}

const upsertMessageSQL = `
INSERT INTO ufdr_messages (
	job_id, natural_key, message_id, thread_id, key_synthesized, source_app, body,
	message_type, platform, message_timestamp, message_timestamp_dt,
	deleted_state, decoding_confidence,
	from_identifier, from_name, from_role, from_is_owner,
	to_identifier, to_name, to_role, to_is_owner,
	has_attachments, attachment_count, raw_xml, snapshot
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
ON CONFLICT (job_id, natural_key) DO UPDATE SET
	message_id = EXCLUDED.message_id,
	thread_id = EXCLUDED.thread_id,
	key_synthesized = EXCLUDED.key_synthesized,
	source_app = EXCLUDED.source_app,
	body = EXCLUDED.body,
	message_type = EXCLUDED.message_type,
	platform = EXCLUDED.platform,
	message_timestamp = EXCLUDED.message_timestamp,
	message_timestamp_dt = EXCLUDED.message_timestamp_dt,
	deleted_state = EXCLUDED.deleted_state,
	decoding_confidence = EXCLUDED.decoding_confidence,
	from_identifier = EXCLUDED.from_identifier,
	from_name = EXCLUDED.from_name,
	from_role = EXCLUDED.from_role,
	from_is_owner = EXCLUDED.from_is_owner,
	to_identifier = EXCLUDED.to_identifier,
	to_name = EXCLUDED.to_name,
	to_role = EXCLUDED.to_role,
	to_is_owner = EXCLUDED.to_is_owner,
	has_attachments = EXCLUDED.has_attachments,
	attachment_count = EXCLUDED.attachment_count,
	raw_xml = EXCLUDED.raw_xml,
	snapshot = EXCLUDED.snapshot
RETURNING id`

func (s *PostgresStore) StoreMessages(ctx context.Context, jobID string, messages []models.Message) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range messages {
			fromID, fromName, fromRole, fromOwner := partyCols(m.From)
			toID, toName, toRole, toOwner := partyCols(m.To)

			var rowID int64
			err := tx.QueryRowContext(ctx, upsertMessageSQL,
				jobID, m.Key(), m.MessageID, m.ThreadID, m.KeySynthesized, m.SourceApp, m.Body,
				m.MessageType, m.Platform, nullInt64(m.Timestamp), nullTime(m.Time),
				m.DeletedState, m.DecodingConfidence,
				fromID, fromName, fromRole, fromOwner,
				toID, toName, toRole, toOwner,
				m.HasAttachments, m.AttachmentCount, m.RawXML, m.Snapshot).Scan(&rowID)
			if err != nil {
				return fmt.Errorf("failed to upsert message %q: %w", m.MessageID, err)
			}

			if _, err := tx.ExecContext(ctx,
				`DELETE FROM ufdr_message_parties WHERE message_row_id = $1`, rowID); err != nil {
				return fmt.Errorf("failed to clear message parties: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM ufdr_message_attachments WHERE message_row_id = $1`, rowID); err != nil {
				return fmt.Errorf("failed to clear message attachments: %w", err)
			}
			for i, p := range m.Parties {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO ufdr_message_parties (message_row_id, position, identifier, name, role, is_phone_owner)
					VALUES ($1,$2,$3,$4,$5,$6)`,
					rowID, i, p.Identifier, p.Name, p.Role, p.IsPhoneOwner); err != nil {
					return fmt.Errorf("failed to insert message party: %w", err)
				}
			}
			for i, a := range m.Attachments {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO ufdr_message_attachments (message_row_id, position, attachment_type, filename, file_path, file_size, content_type)
					VALUES ($1,$2,$3,$4,$5,$6,$7)`,
					rowID, i, a.AttachmentType, a.Filename, a.FilePath, nullInt64(a.FileSize), a.ContentType); err != nil {
					return fmt.Errorf("failed to insert message attachment: %w", err)
				}
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetMessages(ctx context.Context, jobID string, limit, offset int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, thread_id, key_synthesized, source_app, body,
			message_type, platform, message_timestamp, message_timestamp_dt,
			deleted_state, decoding_confidence,
			from_identifier, from_name, from_role, from_is_owner,
			to_identifier, to_name, to_role, to_is_owner,
			has_attachments, attachment_count, raw_xml, snapshot
		FROM ufdr_messages WHERE job_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		jobID, limitArg(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	var rowIDs []int64
	rowIndex := make(map[int64]int)
	for rows.Next() {
		m := models.Message{JobID: jobID}
		var rowID int64
		var ts sql.NullInt64
		var dt sql.NullTime
		var fromID, fromName, fromRole, toID, toName, toRole sql.NullString
		var fromOwner, toOwner sql.NullBool
		if err := rows.Scan(&rowID, &m.MessageID, &m.ThreadID, &m.KeySynthesized, &m.SourceApp, &m.Body,
			&m.MessageType, &m.Platform, &ts, &dt,
			&m.DeletedState, &m.DecodingConfidence,
			&fromID, &fromName, &fromRole, &fromOwner,
			&toID, &toName, &toRole, &toOwner,
			&m.HasAttachments, &m.AttachmentCount, &m.RawXML, &m.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Timestamp = int64Ptr(ts)
		m.Time = timePtr(dt)
		m.From = partyFromCols(fromID, fromName, fromRole, fromOwner)
		m.To = partyFromCols(toID, toName, toRole, toOwner)
		rowIndex[rowID] = len(out)
		rowIDs = append(rowIDs, rowID)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(rowIDs) == 0 {
		return out, nil
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT message_row_id, identifier, name, role, is_phone_owner
		FROM ufdr_message_parties WHERE message_row_id = ANY($1) ORDER BY message_row_id, position`,
		pq.Array(rowIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query message parties: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var rowID int64
		var p models.Party
		if err := prows.Scan(&rowID, &p.Identifier, &p.Name, &p.Role, &p.IsPhoneOwner); err != nil {
			return nil, fmt.Errorf("failed to scan message party row: %w", err)
		}
		if i, ok := rowIndex[rowID]; ok {
			out[i].Parties = append(out[i].Parties, p)
		}
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	arows, err := s.db.QueryContext(ctx, `
		SELECT message_row_id, attachment_type, filename, file_path, file_size, content_type
		FROM ufdr_message_attachments WHERE message_row_id = ANY($1) ORDER BY message_row_id, position`,
		pq.Array(rowIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query message attachments: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var rowID int64
		var a models.Attachment
		var size sql.NullInt64
		if err := arows.Scan(&rowID, &a.AttachmentType, &a.Filename, &a.FilePath, &size, &a.ContentType); err != nil {
			return nil, fmt.Errorf("failed to scan message attachment row: %w", err)
		}
		a.FileSize = int64Ptr(size)
		if i, ok := rowIndex[rowID]; ok {
			out[i].Attachments = append(out[i].Attachments, a)
		}
	}
	return out, arows.Err()
}

func (s *PostgresStore) CountMessages(ctx context.Context, jobID string) (int, error) {
	return s.count(ctx, "ufdr_messages", jobID)
}

const upsertLocationSQL = `
INSERT INTO ufdr_locations (
	job_id, natural_key, source_app, latitude, longitude, altitude, accuracy, speed, bearing,
	location_type, category, address, city, state, country, postal_code,
	activity_type, activity_confidence, location_timestamp, location_timestamp_dt,
	deleted_state, decoding_confidence, raw_xml, snapshot
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
ON CONFLICT (job_id, natural_key) DO UPDATE SET
	source_app = EXCLUDED.source_app,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	altitude = EXCLUDED.altitude,
	accuracy = EXCLUDED.accuracy,
	speed = EXCLUDED.speed,
	bearing = EXCLUDED.bearing,
	location_type = EXCLUDED.location_type,
	category = EXCLUDED.category,
	address = EXCLUDED.address,
	city = EXCLUDED.city,
	state = EXCLUDED.state,
	country = EXCLUDED.country,
	postal_code = EXCLUDED.postal_code,
	activity_type = EXCLUDED.activity_type,
	activity_confidence = EXCLUDED.activity_confidence,
	location_timestamp = EXCLUDED.location_timestamp,
	location_timestamp_dt = EXCLUDED.location_timestamp_dt,
	deleted_state = EXCLUDED.deleted_state,
	decoding_confidence = EXCLUDED.decoding_confidence,
	raw_xml = EXCLUDED.raw_xml,
	snapshot = EXCLUDED.snapshot`

func (s *PostgresStore) StoreLocations(ctx context.Context, jobID string, locations []models.Location) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, l := range locations {
			_, err := tx.ExecContext(ctx, upsertLocationSQL,
				jobID, l.Key(), l.SourceApp,
				nullFloat(l.Latitude), nullFloat(l.Longitude), nullFloat(l.Altitude),
				nullFloat(l.Accuracy), nullFloat(l.Speed), nullFloat(l.Bearing),
				l.LocationType, l.Category, l.Address, l.City, l.State, l.Country, l.PostalCode,
				l.ActivityType, nullFloat(l.ActivityConfidence),
				nullInt64(l.Timestamp), nullTime(l.Time),
				l.DeletedState, l.DecodingConfidence, l.RawXML, l.Snapshot)
			if err != nil {
				return fmt.Errorf("failed to upsert location %q: %w", l.Key(), err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetLocations(ctx context.Context, jobID string, limit, offset int) ([]models.Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_app, latitude, longitude, altitude, accuracy, speed, bearing,
			location_type, category, address, city, state, country, postal_code,
			activity_type, activity_confidence, location_timestamp, location_timestamp_dt,
			deleted_state, decoding_confidence, raw_xml, snapshot
		FROM ufdr_locations WHERE job_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		jobID, limitArg(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var out []models.Location
	for rows.Next() {
		l := models.Location{JobID: jobID}
		var lat, lon, alt, acc, speed, bearing, conf sql.NullFloat64
		var ts sql.NullInt64
		var dt sql.NullTime
		if err := rows.Scan(&l.SourceApp, &lat, &lon, &alt, &acc, &speed, &bearing,
			&l.LocationType, &l.Category, &l.Address, &l.City, &l.State, &l.Country, &l.PostalCode,
			&l.ActivityType, &conf, &ts, &dt,
			&l.DeletedState, &l.DecodingConfidence, &l.RawXML, &l.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan location row: %w", err)
		}
		l.Latitude = floatPtr(lat)
		l.Longitude = floatPtr(lon)
		l.Altitude = floatPtr(alt)
		l.Accuracy = floatPtr(acc)
		l.Speed = floatPtr(speed)
		l.Bearing = floatPtr(bearing)
		l.ActivityConfidence = floatPtr(conf)
		l.Timestamp = int64Ptr(ts)
		l.Time = timePtr(dt)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountLocations(ctx context.Context, jobID string) (int, error) {
	return s.count(ctx, "ufdr_locations", jobID)
}

const upsertBrowsingSQL = `
INSERT INTO ufdr_browsing_history (
	job_id, natural_key, entry_id, entry_type, source_browser, url, title,
	search_query, bookmark_path, visit_count, url_cache_file,
	last_visited, last_visited_dt, deleted_state, decoding_confidence, raw_xml, snapshot
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (job_id, natural_key) DO UPDATE SET
	entry_id = EXCLUDED.entry_id,
	entry_type = EXCLUDED.entry_type,
	source_browser = EXCLUDED.source_browser,
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	search_query = EXCLUDED.search_query,
	bookmark_path = EXCLUDED.bookmark_path,
	visit_count = EXCLUDED.visit_count,
	url_cache_file = EXCLUDED.url_cache_file,
	last_visited = EXCLUDED.last_visited,
	last_visited_dt = EXCLUDED.last_visited_dt,
	deleted_state = EXCLUDED.deleted_state,
	decoding_confidence = EXCLUDED.decoding_confidence,
	raw_xml = EXCLUDED.raw_xml,
	snapshot = EXCLUDED.snapshot`

func (s *PostgresStore) StoreBrowsingEntries(ctx context.Context, jobID string, entries []models.BrowsingEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, b := range entries {
			_, err := tx.ExecContext(ctx, upsertBrowsingSQL,
				jobID, b.Key(), b.EntryID, b.EntryType, b.SourceApp, b.URL, b.Title,
				b.SearchQuery, b.BookmarkPath, nullInt(b.VisitCount), b.URLCacheFile,
				nullInt64(b.Timestamp), nullTime(b.Time),
				b.DeletedState, b.DecodingConfidence, b.RawXML, b.Snapshot)
			if err != nil {
				return fmt.Errorf("failed to upsert browsing entry %q: %w", b.Key(), err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetBrowsingEntries(ctx context.Context, jobID string, limit, offset int) ([]models.BrowsingEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, entry_type, source_browser, url, title,
			search_query, bookmark_path, visit_count, url_cache_file,
			last_visited, last_visited_dt, deleted_state, decoding_confidence, raw_xml, snapshot
		FROM ufdr_browsing_history WHERE job_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		jobID, limitArg(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query browsing history: %w", err)
	}
	defer rows.Close()

	var out []models.BrowsingEntry
	for rows.Next() {
		b := models.BrowsingEntry{JobID: jobID}
		var visits sql.NullInt64
		var ts sql.NullInt64
		var dt sql.NullTime
		if err := rows.Scan(&b.EntryID, &b.EntryType, &b.SourceApp, &b.URL, &b.Title,
			&b.SearchQuery, &b.BookmarkPath, &visits, &b.URLCacheFile,
			&ts, &dt, &b.DeletedState, &b.DecodingConfidence, &b.RawXML, &b.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan browsing row: %w", err)
		}
		b.VisitCount = intPtr(visits)
		b.Timestamp = int64Ptr(ts)
		b.Time = timePtr(dt)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountBrowsingEntries(ctx context.Context, jobID string) (int, error) {
	return s.count(ctx, "ufdr_browsing_history", jobID)
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// count uses a fixed table name from the callers above, never user input.
func (s *PostgresStore) count(ctx context.Context, table, jobID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE job_id = $1", table), jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return n, nil
}

// limitArg maps a non-positive limit to LIMIT NULL, meaning no limit.
func limitArg(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

func partyCols(p *models.Party) (id, name, role sql.NullString, owner sql.NullBool) {
	if p == nil {
		return
	}
	id = sql.NullString{String: p.Identifier, Valid: true}
	name = sql.NullString{String: p.Name, Valid: true}
	role = sql.NullString{String: p.Role, Valid: true}
	owner = sql.NullBool{Bool: p.IsPhoneOwner, Valid: true}
	return
}

func partyFromCols(id, name, role sql.NullString, owner sql.NullBool) *models.Party {
	if !id.Valid {
		return nil
	}
	return &models.Party{
		Identifier:   id.String,
		Name:         name.String,
		Role:         role.String,
		IsPhoneOwner: owner.Bool,
	}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
