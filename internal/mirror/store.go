// Package mirror is the Local Persistence Mirror: a durable copy of the
// reconciled user aggregates (profile, started ids, completed ids, watch
// records, exercise stats) kept in a SQLite key-value table. Keys are
// namespaced per account so switching accounts never touches another
// account's cache. A separate process-wide key holds the current profile.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/text/unicode/norm"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/learnsync/internal/contentid"
	"github.com/tonimelisma/learnsync/internal/session"
)

// ErrNoIdentity is returned when an owner profile has neither a nickname nor
// a username, so no namespace can be derived for it.
var ErrNoIdentity = errors.New("mirror: profile has no nickname or username")

// SQL statements for kv operations.
const (
	sqlGetKey = `SELECT value FROM kv WHERE namespace = ? AND key = ?`

	sqlListNamespace = `SELECT key, value FROM kv WHERE namespace = ?`

	sqlDeleteKey = `DELETE FROM kv WHERE namespace = ? AND key = ?`

	sqlInsertKey = `INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)`

	sqlDeleteNamespace = `DELETE FROM kv WHERE namespace = ?`
)

// Namespaces and keys.
const (
	globalNamespace   = "global"
	keyCurrentProfile = "current_profile"

	namespacePrefix  = "uid-"
	keyProfile       = "profile"
	keyStarted       = "started"
	keyCompleted     = "completed"
	keyWatchRecords  = "user_videos"
	keyExerciseStats = "user_exercises"
)

// Field selects aggregates in Aggregates and Cached.
type Field uint8

// Aggregate fields.
const (
	FieldProfile Field = 1 << iota
	FieldStarted
	FieldCompleted
	FieldWatchRecords
	FieldExerciseStats

	FieldAll = FieldProfile | FieldStarted | FieldCompleted | FieldWatchRecords | FieldExerciseStats
)

// Aggregates is a batch of values to write. Only the fields named in Fields
// are written; the rest are left untouched in storage.
type Aggregates struct {
	Fields        Field
	Profile       session.Profile
	Started       []contentid.ID
	Completed     []contentid.ID
	WatchRecords  []session.WatchRecord
	ExerciseStats []session.ExerciseStat
}

// AggregatesFromUser selects fields of u for writing. The profile is taken
// from u when present.
func AggregatesFromUser(u session.User, fields Field) Aggregates {
	a := Aggregates{
		Fields:        fields,
		Started:       u.Started,
		Completed:     u.Completed,
		WatchRecords:  u.WatchRecords,
		ExerciseStats: u.ExerciseStats,
	}

	if u.Profile != nil {
		a.Profile = *u.Profile
	} else {
		a.Fields &^= FieldProfile
	}

	return a
}

// Cached is what LoadAll found for an account. Found records which fields
// were present in storage.
type Cached struct {
	Found         Field
	Profile       session.Profile
	Started       []contentid.ID
	Completed     []contentid.ID
	WatchRecords  []session.WatchRecord
	ExerciseStats []session.ExerciseStat
}

// Has reports whether every field in f was found.
func (c Cached) Has(f Field) bool {
	return c.Found&f == f
}

// Store is the SQLite-backed mirror. Safe for concurrent use; writes are
// serialised by the single database connection.
type Store struct {
	db      *sqlx.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the mirror database at dbPath and applies
// migrations. WAL mode with synchronous=FULL keeps committed writes durable
// across crashes.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("mirror: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db.DB, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("mirror opened", slog.String("db_path", dbPath))

	return &Store{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Namespace returns the storage namespace for owner.
func Namespace(owner session.Profile) (string, error) {
	ns := owner.Namespace()
	if ns == "" {
		return "", ErrNoIdentity
	}

	return namespacePrefix + norm.NFC.String(ns), nil
}

// SaveAll writes the selected aggregates for the account identified by
// a.Profile (or owner when the profile field is not selected) in a single
// transaction. Each key is removed before its new value is inserted; a failed
// transaction leaves the previously stored values in place.
func (s *Store) SaveAll(ctx context.Context, owner session.Profile, a Aggregates) error {
	ns, err := Namespace(owner)
	if err != nil {
		return err
	}

	type write struct {
		namespace string
		key       string
		value     any
	}

	var writes []write

	if a.Fields&FieldProfile != 0 {
		writes = append(writes,
			write{ns, keyProfile, a.Profile},
			write{globalNamespace, keyCurrentProfile, a.Profile},
		)
	}

	if a.Fields&FieldStarted != 0 {
		writes = append(writes, write{ns, keyStarted, nonNil(a.Started)})
	}

	if a.Fields&FieldCompleted != 0 {
		writes = append(writes, write{ns, keyCompleted, nonNil(a.Completed)})
	}

	if a.Fields&FieldWatchRecords != 0 {
		writes = append(writes, write{ns, keyWatchRecords, encodeWatchRecords(a.WatchRecords)})
	}

	if a.Fields&FieldExerciseStats != 0 {
		writes = append(writes, write{ns, keyExerciseStats, encodeExerciseStats(a.ExerciseStats)})
	}

	if len(writes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mirror: beginning write: %w", err)
	}
	defer tx.Rollback()

	now := s.nowFunc().UnixNano()

	for _, w := range writes {
		data, err := json.Marshal(w.value)
		if err != nil {
			return fmt.Errorf("mirror: encoding %s: %w", w.key, err)
		}

		if _, err := tx.ExecContext(ctx, sqlDeleteKey, w.namespace, w.key); err != nil {
			return fmt.Errorf("mirror: removing %s: %w", w.key, err)
		}

		if _, err := tx.ExecContext(ctx, sqlInsertKey, w.namespace, w.key, string(data), now); err != nil {
			return fmt.Errorf("mirror: writing %s: %w", w.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mirror: committing write: %w", err)
	}

	s.logger.Debug("mirror aggregates saved",
		slog.String("namespace", ns),
		slog.Int("keys", len(writes)),
	)

	return nil
}

// SaveProfile stores p under its own namespace and as the current profile.
func (s *Store) SaveProfile(ctx context.Context, p session.Profile) error {
	return s.SaveAll(ctx, p, Aggregates{Fields: FieldProfile, Profile: p})
}

// SaveCurrentProfile replaces only the process-wide current profile.
func (s *Store) SaveCurrentProfile(ctx context.Context, p session.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("mirror: encoding %s: %w", keyCurrentProfile, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mirror: beginning write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlDeleteKey, globalNamespace, keyCurrentProfile); err != nil {
		return fmt.Errorf("mirror: removing %s: %w", keyCurrentProfile, err)
	}

	if _, err := tx.ExecContext(ctx, sqlInsertKey, globalNamespace, keyCurrentProfile,
		string(data), s.nowFunc().UnixNano()); err != nil {
		return fmt.Errorf("mirror: writing %s: %w", keyCurrentProfile, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mirror: committing write: %w", err)
	}

	return nil
}

// SaveStarted stores the started id list for owner.
func (s *Store) SaveStarted(ctx context.Context, owner session.Profile, ids []contentid.ID) error {
	return s.SaveAll(ctx, owner, Aggregates{Fields: FieldStarted, Started: ids})
}

// SaveCompleted stores the completed id list for owner.
func (s *Store) SaveCompleted(ctx context.Context, owner session.Profile, ids []contentid.ID) error {
	return s.SaveAll(ctx, owner, Aggregates{Fields: FieldCompleted, Completed: ids})
}

// SaveWatchRecords stores the watch record list for owner.
func (s *Store) SaveWatchRecords(ctx context.Context, owner session.Profile, records []session.WatchRecord) error {
	return s.SaveAll(ctx, owner, Aggregates{Fields: FieldWatchRecords, WatchRecords: records})
}

// SaveExerciseStats stores the exercise stat list for owner.
func (s *Store) SaveExerciseStats(ctx context.Context, owner session.Profile, stats []session.ExerciseStat) error {
	return s.SaveAll(ctx, owner, Aggregates{Fields: FieldExerciseStats, ExerciseStats: stats})
}

// LoadCurrentProfile returns the process-wide current profile, if any.
func (s *Store) LoadCurrentProfile(ctx context.Context) (session.Profile, bool, error) {
	var p session.Profile

	found, err := s.load(ctx, globalNamespace, keyCurrentProfile, &p)

	return p, found, err
}

// LoadProfile returns the profile stored for owner's namespace.
func (s *Store) LoadProfile(ctx context.Context, owner session.Profile) (session.Profile, bool, error) {
	var p session.Profile

	found, err := s.loadFor(ctx, owner, keyProfile, &p)

	return p, found, err
}

// LoadStarted returns the started ids stored for owner.
func (s *Store) LoadStarted(ctx context.Context, owner session.Profile) ([]contentid.ID, bool, error) {
	var ids []contentid.ID

	found, err := s.loadFor(ctx, owner, keyStarted, &ids)

	return ids, found, err
}

// LoadCompleted returns the completed ids stored for owner.
func (s *Store) LoadCompleted(ctx context.Context, owner session.Profile) ([]contentid.ID, bool, error) {
	var ids []contentid.ID

	found, err := s.loadFor(ctx, owner, keyCompleted, &ids)

	return ids, found, err
}

// LoadWatchRecords returns the watch records stored for owner.
func (s *Store) LoadWatchRecords(ctx context.Context, owner session.Profile) ([]session.WatchRecord, bool, error) {
	var raw []watchRecordJSON

	found, err := s.loadFor(ctx, owner, keyWatchRecords, &raw)
	if err != nil || !found {
		return nil, found, err
	}

	return decodeWatchRecords(raw), true, nil
}

// LoadExerciseStats returns the exercise stats stored for owner.
func (s *Store) LoadExerciseStats(ctx context.Context, owner session.Profile) ([]session.ExerciseStat, bool, error) {
	var raw []exerciseStatJSON

	found, err := s.loadFor(ctx, owner, keyExerciseStats, &raw)
	if err != nil || !found {
		return nil, found, err
	}

	return decodeExerciseStats(raw), true, nil
}

// kvRow is one row of a namespace listing.
type kvRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// LoadAll reads every aggregate stored for owner in one query.
func (s *Store) LoadAll(ctx context.Context, owner session.Profile) (Cached, error) {
	ns, err := Namespace(owner)
	if err != nil {
		return Cached{}, err
	}

	var rows []kvRow
	if err := s.db.SelectContext(ctx, &rows, sqlListNamespace, ns); err != nil {
		return Cached{}, fmt.Errorf("mirror: listing %s: %w", ns, err)
	}

	var c Cached

	for _, row := range rows {
		var (
			field Field
			dest  any
		)

		var (
			watch    []watchRecordJSON
			exercise []exerciseStatJSON
		)

		switch row.Key {
		case keyProfile:
			field, dest = FieldProfile, &c.Profile
		case keyStarted:
			field, dest = FieldStarted, &c.Started
		case keyCompleted:
			field, dest = FieldCompleted, &c.Completed
		case keyWatchRecords:
			field, dest = FieldWatchRecords, &watch
		case keyExerciseStats:
			field, dest = FieldExerciseStats, &exercise
		default:
			continue
		}

		if !s.decode(ctx, ns, row.Key, row.Value, dest) {
			continue
		}

		switch field {
		case FieldWatchRecords:
			c.WatchRecords = decodeWatchRecords(watch)
		case FieldExerciseStats:
			c.ExerciseStats = decodeExerciseStats(exercise)
		}

		c.Found |= field
	}

	return c, nil
}

// ClearAll removes the current-profile key. Per-account namespaces are kept
// so a later sign-in to the same account starts from its cache; use Purge to
// drop one of them.
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteKey, globalNamespace, keyCurrentProfile); err != nil {
		return fmt.Errorf("mirror: clearing current profile: %w", err)
	}

	s.logger.Info("mirror current profile cleared")

	return nil
}

// Purge removes every key stored for owner, and the current-profile key if
// it belongs to owner.
func (s *Store) Purge(ctx context.Context, owner session.Profile) error {
	ns, err := Namespace(owner)
	if err != nil {
		return err
	}

	cur, found, err := s.LoadCurrentProfile(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mirror: beginning purge: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlDeleteNamespace, ns); err != nil {
		return fmt.Errorf("mirror: purging %s: %w", ns, err)
	}

	if curNS, nsErr := Namespace(cur); found && nsErr == nil && curNS == ns {
		if _, err := tx.ExecContext(ctx, sqlDeleteKey, globalNamespace, keyCurrentProfile); err != nil {
			return fmt.Errorf("mirror: clearing current profile: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mirror: committing purge: %w", err)
	}

	s.logger.Info("mirror namespace purged", slog.String("namespace", ns))

	return nil
}

func (s *Store) loadFor(ctx context.Context, owner session.Profile, key string, dest any) (bool, error) {
	ns, err := Namespace(owner)
	if err != nil {
		return false, err
	}

	return s.load(ctx, ns, key, dest)
}

// load reads one key into dest. Missing keys report found=false.
func (s *Store) load(ctx context.Context, ns, key string, dest any) (bool, error) {
	var value string

	err := s.db.GetContext(ctx, &value, sqlGetKey, ns, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("mirror: reading %s/%s: %w", ns, key, err)
	}

	return s.decode(ctx, ns, key, value, dest), nil
}

// decode unmarshals value into dest. A corrupt value is deleted and reported
// as absent so a damaged row never blocks a cold start.
func (s *Store) decode(ctx context.Context, ns, key, value string, dest any) bool {
	if err := json.Unmarshal([]byte(value), dest); err != nil {
		s.logger.Warn("corrupt mirror value, deleting",
			slog.String("namespace", ns),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)

		if _, delErr := s.db.ExecContext(ctx, sqlDeleteKey, ns, key); delErr != nil {
			s.logger.Warn("failed to remove corrupt mirror value",
				slog.String("namespace", ns),
				slog.String("key", key),
				slog.String("error", delErr.Error()),
			)
		}

		return false
	}

	return true
}

// nonNil makes empty id lists encode as [] rather than null.
func nonNil(ids []contentid.ID) []contentid.ID {
	if ids == nil {
		return []contentid.ID{}
	}

	return ids
}
