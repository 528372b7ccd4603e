package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/twinlabs/twind/internal/persona"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for persona memories,
// consultations, shares, data sources, and the job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "twind.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Persona Memories ---

// GetOrCreateMemory loads the owner's persona memory, inserting a fresh record
// with defaults on first sight. defaultPersona seeds preferred_persona and may
// be empty.
func (s *Store) GetOrCreateMemory(owner, defaultPersona string) (persona.Memory, error) {
	m, err := s.getMemory(owner)
	if err == nil {
		return m, nil
	}
	if err != ErrNotFound {
		return persona.Memory{}, err
	}

	m = persona.NewMemory(owner, defaultPersona)
	m.ID = uuid.NewString()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(`
		INSERT INTO persona_memories
			(id, owner, preferred_persona, interaction_count, preferred_depth,
			 topic_preferences, engagement_metrics, communication_style,
			 suggested_deep_dives, last_interaction, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '{}', '{}', '{}', '[]', NULL, ?, ?)`,
		m.ID, m.Owner, m.PreferredPersona, m.InteractionCount, m.PreferredDepth, now, now,
	)
	if err != nil {
		return persona.Memory{}, fmt.Errorf("creating persona memory: %w", err)
	}
	return m, nil
}

func (s *Store) getMemory(owner string) (persona.Memory, error) {
	var m persona.Memory
	var prefs, metrics, style, dives string
	var lastInteraction sql.NullString
	err := s.db.QueryRow(`
		SELECT id, owner, preferred_persona, interaction_count, preferred_depth,
		       topic_preferences, engagement_metrics, communication_style,
		       suggested_deep_dives, last_interaction
		FROM persona_memories WHERE owner = ?`, owner,
	).Scan(&m.ID, &m.Owner, &m.PreferredPersona, &m.InteractionCount, &m.PreferredDepth,
		&prefs, &metrics, &style, &dives, &lastInteraction)
	if err == sql.ErrNoRows {
		return persona.Memory{}, ErrNotFound
	}
	if err != nil {
		return persona.Memory{}, err
	}

	if err := json.Unmarshal([]byte(prefs), &m.TopicPreferences); err != nil {
		return persona.Memory{}, fmt.Errorf("decoding topic_preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &m.EngagementMetrics); err != nil {
		return persona.Memory{}, fmt.Errorf("decoding engagement_metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(style), &m.Style); err != nil {
		return persona.Memory{}, fmt.Errorf("decoding communication_style: %w", err)
	}
	if err := json.Unmarshal([]byte(dives), &m.SuggestedDeepDives); err != nil {
		return persona.Memory{}, fmt.Errorf("decoding suggested_deep_dives: %w", err)
	}
	if m.TopicPreferences == nil {
		m.TopicPreferences = map[string]int{}
	}
	if m.EngagementMetrics == nil {
		m.EngagementMetrics = map[string]float64{}
	}
	if m.SuggestedDeepDives == nil {
		m.SuggestedDeepDives = []persona.DeepDiveSuggestion{}
	}

	if lastInteraction.Valid && lastInteraction.String != "" {
		t, err := time.Parse(time.RFC3339, lastInteraction.String)
		if err != nil {
			return persona.Memory{}, fmt.Errorf("parsing last_interaction: %w", err)
		}
		m.LastInteraction = t
	}
	return m, nil
}

// GetMemory loads the owner's persona memory, returning ErrNotFound when none exists.
func (s *Store) GetMemory(owner string) (persona.Memory, error) {
	return s.getMemory(owner)
}

// UpdateMemory writes back the full mutated record.
func (s *Store) UpdateMemory(m persona.Memory) error {
	prefs, err := json.Marshal(m.TopicPreferences)
	if err != nil {
		return fmt.Errorf("encoding topic_preferences: %w", err)
	}
	metrics, err := json.Marshal(m.EngagementMetrics)
	if err != nil {
		return fmt.Errorf("encoding engagement_metrics: %w", err)
	}
	style, err := json.Marshal(m.Style)
	if err != nil {
		return fmt.Errorf("encoding communication_style: %w", err)
	}
	dives, err := json.Marshal(m.SuggestedDeepDives)
	if err != nil {
		return fmt.Errorf("encoding suggested_deep_dives: %w", err)
	}

	var lastInteraction any
	if !m.LastInteraction.IsZero() {
		lastInteraction = m.LastInteraction.UTC().Format(time.RFC3339)
	}

	res, err := s.db.Exec(`
		UPDATE persona_memories
		SET preferred_persona = ?, interaction_count = ?, preferred_depth = ?,
		    topic_preferences = ?, engagement_metrics = ?, communication_style = ?,
		    suggested_deep_dives = ?, last_interaction = ?, updated_at = ?
		WHERE owner = ?`,
		m.PreferredPersona, m.InteractionCount, m.PreferredDepth,
		string(prefs), string(metrics), string(style), string(dives),
		lastInteraction, time.Now().UTC().Format(time.RFC3339), m.Owner,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Consultations ---

func (s *Store) SaveConsultation(c Consultation) error {
	_, err := s.db.Exec(`
		INSERT INTO consultations (id, owner, title, query, answer, persona, depth, model, is_shared, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Owner, c.Title, c.Query, c.Answer, c.Persona, c.Depth, c.Model,
		c.IsShared, c.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetConsultation(owner, id string) (Consultation, error) {
	var c Consultation
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, owner, title, query, answer, persona, depth, model, is_shared, created_at
		FROM consultations WHERE id = ? AND owner = ?`, id, owner,
	).Scan(&c.ID, &c.Owner, &c.Title, &c.Query, &c.Answer, &c.Persona, &c.Depth, &c.Model, &c.IsShared, &createdAt)
	if err == sql.ErrNoRows {
		return Consultation{}, ErrNotFound
	}
	if err != nil {
		return Consultation{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Consultation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t
	return c, nil
}

// ListConsultations returns the owner's consultations newest first.
func (s *Store) ListConsultations(owner string, limit, offset int) ([]Consultation, error) {
	rows, err := s.db.Query(`
		SELECT id, owner, title, query, answer, persona, depth, model, is_shared, created_at
		FROM consultations WHERE owner = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, owner, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Consultation{}
	for rows.Next() {
		var c Consultation
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Owner, &c.Title, &c.Query, &c.Answer, &c.Persona, &c.Depth, &c.Model, &c.IsShared, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		c.CreatedAt = t
		results = append(results, c)
	}
	return results, rows.Err()
}

// DeleteConsultation removes the owner's consultation and any share links
// pointing at it.
func (s *Store) DeleteConsultation(owner, id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM consultations WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM shared_consultations WHERE consultation_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkConsultationShared flips the is_shared flag.
func (s *Store) MarkConsultationShared(id string, shared bool) error {
	res, err := s.db.Exec(`UPDATE consultations SET is_shared = ? WHERE id = ?`, shared, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Shared Consultations ---

func (s *Store) SaveShare(sc SharedConsultation) error {
	_, err := s.db.Exec(`
		INSERT INTO shared_consultations (share_token, consultation_id, owner, shared_with, expires_at, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sc.ShareToken, sc.ConsultationID, sc.Owner, sc.SharedWith,
		sc.ExpiresAt.UTC().Format(time.RFC3339), sc.IsActive,
		sc.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetShareByToken(token string) (SharedConsultation, error) {
	var sc SharedConsultation
	var expiresAt, createdAt string
	err := s.db.QueryRow(`
		SELECT share_token, consultation_id, owner, shared_with, expires_at, is_active, created_at
		FROM shared_consultations WHERE share_token = ?`, token,
	).Scan(&sc.ShareToken, &sc.ConsultationID, &sc.Owner, &sc.SharedWith, &expiresAt, &sc.IsActive, &createdAt)
	if err == sql.ErrNoRows {
		return SharedConsultation{}, ErrNotFound
	}
	if err != nil {
		return SharedConsultation{}, err
	}
	if sc.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return SharedConsultation{}, fmt.Errorf("parsing expires_at: %w", err)
	}
	if sc.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return SharedConsultation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return sc, nil
}

// RevokeShare deactivates the owner's share link.
func (s *Store) RevokeShare(owner, token string) error {
	res, err := s.db.Exec(`
		UPDATE shared_consultations SET is_active = 0 WHERE share_token = ? AND owner = ?`,
		token, owner,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveShares reports remaining active share links for a consultation.
func (s *Store) CountActiveShares(consultationID string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM shared_consultations
		WHERE consultation_id = ? AND is_active = 1`, consultationID,
	).Scan(&n)
	return n, err
}

// --- Data Sources ---

func (s *Store) SaveDataSource(d DataSource) error {
	status := d.Status
	if status == "" {
		status = SourceStatusPending
	}
	_, err := s.db.Exec(`
		INSERT INTO data_sources (id, owner, name, kind, url, provider, api_key, content, status, error_message, sentiment, last_analysis, sync_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		d.ID, d.Owner, d.Name, d.Kind, d.URL, d.Provider, d.APIKey, d.Content,
		status, d.ErrorMessage, d.Sentiment, d.SyncCount,
		d.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) scanDataSource(row interface{ Scan(...any) error }) (DataSource, error) {
	var d DataSource
	var lastAnalysis sql.NullString
	var createdAt string
	err := row.Scan(&d.ID, &d.Owner, &d.Name, &d.Kind, &d.URL, &d.Provider, &d.APIKey,
		&d.Content, &d.Status, &d.ErrorMessage, &d.Sentiment, &lastAnalysis, &d.SyncCount, &createdAt)
	if err == sql.ErrNoRows {
		return DataSource{}, ErrNotFound
	}
	if err != nil {
		return DataSource{}, err
	}
	if lastAnalysis.Valid && lastAnalysis.String != "" {
		if d.LastAnalysis, err = time.Parse(time.RFC3339, lastAnalysis.String); err != nil {
			return DataSource{}, fmt.Errorf("parsing last_analysis: %w", err)
		}
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return DataSource{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return d, nil
}

const dataSourceColumns = `id, owner, name, kind, url, provider, api_key, content, status, error_message, sentiment, last_analysis, sync_count, created_at`

// GetDataSource loads a source by id alone; the ingest worker has no owner in hand.
func (s *Store) GetDataSource(id string) (DataSource, error) {
	row := s.db.QueryRow(`SELECT `+dataSourceColumns+` FROM data_sources WHERE id = ?`, id)
	return s.scanDataSource(row)
}

// GetOwnedDataSource loads a source scoped to its owner.
func (s *Store) GetOwnedDataSource(owner, id string) (DataSource, error) {
	row := s.db.QueryRow(`SELECT `+dataSourceColumns+` FROM data_sources WHERE id = ? AND owner = ?`, id, owner)
	return s.scanDataSource(row)
}

func (s *Store) ListDataSources(owner string) ([]DataSource, error) {
	rows, err := s.db.Query(`
		SELECT `+dataSourceColumns+` FROM data_sources
		WHERE owner = ? ORDER BY created_at DESC`, owner,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []DataSource{}
	for rows.Next() {
		d, err := s.scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *Store) DeleteDataSource(owner, id string) error {
	res, err := s.db.Exec(`DELETE FROM data_sources WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDataSourceContent records fetched content, marks the source active, and
// bumps sync_count.
func (s *Store) SetDataSourceContent(id, content string) error {
	res, err := s.db.Exec(`
		UPDATE data_sources
		SET content = ?, status = ?, error_message = '', sync_count = sync_count + 1
		WHERE id = ?`, content, SourceStatusActive, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDataSourceError marks the source failed with a message.
func (s *Store) SetDataSourceError(id, msg string) error {
	res, err := s.db.Exec(`
		UPDATE data_sources SET status = ?, error_message = ? WHERE id = ?`,
		SourceStatusError, msg, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDataSourceSentiment stores an analysis report and stamps last_analysis.
func (s *Store) SetDataSourceSentiment(id, reportJSON string) error {
	res, err := s.db.Exec(`
		UPDATE data_sources SET sentiment = ?, last_analysis = ? WHERE id = ?`,
		reportJSON, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]interface{}, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}
