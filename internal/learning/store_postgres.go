package learning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/studyflow/internal/platform/database"
	"github.com/p-n-ai/studyflow/internal/progression"
)

// DefaultDBTimeout bounds every store call unless overridden.
const DefaultDBTimeout = 5 * time.Second

// PostgreSQL error codes the store translates.
const (
	pgInvalidTextRepresentation = "22P02"
	pgCheckViolation            = "23514"
	pgForeignKeyViolation       = "23503"
)

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool    *pgxpool.Pool
	tx      *database.Transactor
	timeout time.Duration
}

// NewPostgresStore creates a store on an already migrated pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool, tx: database.NewTransactor(pool), timeout: DefaultDBTimeout}, nil
}

// SetTimeout changes the per-call timeout. Non-positive values are ignored.
func (s *PostgresStore) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

const profileColumns = `user_id, username, full_name, xp, level, streak, last_activity_date, badges, created_at, updated_at`

func (s *PostgresStore) EnsureProfile(ctx context.Context, userID, username string) (Profile, error) {
	if userID == "" {
		return Profile{}, fmt.Errorf("%w: user id is required", progression.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Most calls find the row, and a plain read takes no row lock.
	p, err := scanProfile(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, classify("ensure profile", err)
	}

	p, err = scanProfile(s.pool.QueryRow(ctx,
		`INSERT INTO profiles (user_id, username)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING
		 RETURNING `+profileColumns,
		userID, username,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// A concurrent request created it first.
		p, err = scanProfile(s.pool.QueryRow(ctx,
			`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
	}
	if err != nil {
		return Profile{}, classify("ensure profile", err)
	}
	return p, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := scanProfile(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		return Profile{}, classify("get profile", err)
	}
	return p, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY user_id`)
	if err != nil {
		return nil, classify("list profiles", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, classify("scan profile", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate profiles", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateCourse(ctx context.Context, userID string, course NewCourse) (Course, error) {
	course, err := course.Normalize()
	if err != nil {
		return Course{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var courseID string
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO courses (user_id, title, description, learning_level, syllabus_text, total_xp)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id::text`,
			userID,
			course.Title,
			course.Description,
			string(course.LearningLevel),
			course.SyllabusText,
			course.TotalXP(),
		).Scan(&courseID); err != nil {
			return fmt.Errorf("insert course: %w", err)
		}

		batch := &pgx.Batch{}
		for i, t := range course.Topics {
			batch.Queue(
				`INSERT INTO topics (course_id, name, description, difficulty, estimated_time, xp_reward, order_index)
				 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)`,
				courseID, t.Name, t.Description, string(t.Difficulty), t.EstimatedTime, t.XPReward, i,
			)
		}
		results := tx.SendBatch(ctx, batch)
		for range course.Topics {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("insert topic: %w", err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return Course{}, classify("create course", err)
	}

	return s.GetCourse(ctx, userID, courseID)
}

const courseColumns = `c.id::text, c.user_id, c.title, c.description, c.learning_level, c.syllabus_text, c.total_xp, c.created_at, c.updated_at`

const topicColumns = `t.id::text, t.course_id::text, t.name, t.description, t.difficulty, t.estimated_time, t.xp_reward, t.order_index, t.is_completed, t.completed_at`

func (s *PostgresStore) ListCourses(ctx context.Context, userID string) ([]Course, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+courseColumns+`
		 FROM courses c
		 WHERE c.user_id = $1
		 ORDER BY c.created_at DESC, c.id`,
		userID,
	)
	if err != nil {
		return nil, classify("list courses", err)
	}
	defer rows.Close()

	var courses []Course
	index := map[string]int{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, classify("scan course", err)
		}
		index[c.ID] = len(courses)
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate courses", err)
	}
	if len(courses) == 0 {
		return courses, nil
	}

	topicRows, err := s.pool.Query(ctx,
		`SELECT `+topicColumns+`
		 FROM topics t
		 JOIN courses c ON c.id = t.course_id
		 WHERE c.user_id = $1
		 ORDER BY t.course_id, t.order_index`,
		userID,
	)
	if err != nil {
		return nil, classify("list topics", err)
	}
	defer topicRows.Close()

	for topicRows.Next() {
		t, err := scanTopic(topicRows)
		if err != nil {
			return nil, classify("scan topic", err)
		}
		if i, ok := index[t.CourseID]; ok {
			courses[i].Topics = append(courses[i].Topics, t)
		}
	}
	if err := topicRows.Err(); err != nil {
		return nil, classify("iterate topics", err)
	}
	return courses, nil
}

func (s *PostgresStore) GetCourse(ctx context.Context, userID, courseID string) (Course, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := scanCourse(s.pool.QueryRow(ctx,
		`SELECT `+courseColumns+`
		 FROM courses c
		 WHERE c.id = $1::uuid AND c.user_id = $2`,
		courseID, userID,
	))
	if err != nil {
		return Course{}, classify("get course", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+topicColumns+`
		 FROM topics t
		 WHERE t.course_id = $1::uuid
		 ORDER BY t.order_index`,
		courseID,
	)
	if err != nil {
		return Course{}, classify("list topics", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return Course{}, classify("scan topic", err)
		}
		c.Topics = append(c.Topics, t)
	}
	if err := rows.Err(); err != nil {
		return Course{}, classify("iterate topics", err)
	}
	return c, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, userID, topicID string) (Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	t, err := scanTopic(s.pool.QueryRow(ctx,
		`SELECT `+topicColumns+`
		 FROM topics t
		 JOIN courses c ON c.id = t.course_id
		 WHERE t.id = $1::uuid AND c.user_id = $2`,
		topicID, userID,
	))
	if err != nil {
		return Topic{}, classify("get topic", err)
	}
	return t, nil
}

func (s *PostgresStore) CompleteTopic(ctx context.Context, userID, topicID string, at time.Time) (CompletionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := CompletionResult{TopicID: topicID}
	err := s.pool.QueryRow(ctx,
		`UPDATE topics t
		 SET is_completed = TRUE, completed_at = $3
		 FROM courses c
		 WHERE t.id = $1::uuid
		   AND c.id = t.course_id
		   AND c.user_id = $2
		   AND t.is_completed = FALSE
		 RETURNING t.course_id::text, t.xp_reward, t.completed_at`,
		topicID, userID, at.UTC(),
	).Scan(&res.CourseID, &res.XPReward, &res.CompletedAt)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return CompletionResult{}, classify("complete topic", err)
	}

	// Nothing changed: either the topic is already done or it is not ours.
	var completed bool
	err = s.pool.QueryRow(ctx,
		`SELECT t.is_completed
		 FROM topics t
		 JOIN courses c ON c.id = t.course_id
		 WHERE t.id = $1::uuid AND c.user_id = $2`,
		topicID, userID,
	).Scan(&completed)
	if err != nil {
		return CompletionResult{}, classify("complete topic", err)
	}
	if completed {
		return CompletionResult{}, fmt.Errorf("complete topic %s: %w", topicID, progression.ErrAlreadyCompleted)
	}
	// Lost a race with a concurrent un-complete, which the schema never does.
	return CompletionResult{}, fmt.Errorf("complete topic %s: %w", topicID, progression.ErrTransient)
}

func (s *PostgresStore) AwardXP(ctx context.Context, userID string, amount int64) (progression.XPAward, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var award progression.XPAward
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := lockProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		award, err = progression.AddXP(p.State(), amount)
		if err != nil {
			return err
		}
		if award.NewXP == p.XP && award.NewLevel == p.Level {
			return nil
		}
		_, err = tx.Exec(ctx,
			`UPDATE profiles SET xp = $2, level = $3, updated_at = NOW() WHERE user_id = $1`,
			userID, award.NewXP, award.NewLevel,
		)
		return err
	})
	if err != nil {
		return progression.XPAward{}, classify("award xp", err)
	}
	return award, nil
}

func (s *PostgresStore) TouchStreak(ctx context.Context, userID string, today progression.Date) (progression.StreakUpdate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var update progression.StreakUpdate
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := lockProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		update = progression.TouchStreak(p.State(), today)
		if !update.Changed {
			return nil
		}
		_, err = tx.Exec(ctx,
			`UPDATE profiles SET streak = $2, last_activity_date = $3, updated_at = NOW() WHERE user_id = $1`,
			userID, update.NewStreak, update.LastActivity.Time(),
		)
		return err
	})
	if err != nil {
		return progression.StreakUpdate{}, classify("touch streak", err)
	}
	return update, nil
}

func (s *PostgresStore) RepairLevels(ctx context.Context) (int, error) {
	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, p := range profiles {
		if p.Level == progression.LevelFor(p.XP) {
			continue
		}
		repaired, err := s.repairLevel(ctx, p.UserID)
		if err != nil {
			return changed, err
		}
		if repaired {
			changed++
		}
	}
	return changed, nil
}

// repairLevel recomputes one level under the row lock, since XP may have moved
// since the listing.
func (s *PostgresStore) repairLevel(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	repaired := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := lockProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		level := progression.LevelFor(p.XP)
		if level == p.Level {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE profiles SET level = $2, updated_at = NOW() WHERE user_id = $1`, userID, level); err != nil {
			return err
		}
		repaired = true
		return nil
	})
	if err != nil {
		return false, classify("repair level", err)
	}
	return repaired, nil
}

func lockProfile(ctx context.Context, tx pgx.Tx, userID string) (Profile, error) {
	return scanProfile(tx.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1 FOR UPDATE`,
		userID,
	))
}

func scanProfile(row pgx.Row) (Profile, error) {
	var (
		p    Profile
		last *time.Time
	)
	if err := row.Scan(
		&p.UserID,
		&p.Username,
		&p.FullName,
		&p.XP,
		&p.Level,
		&p.Streak,
		&last,
		&p.Badges,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return Profile{}, err
	}
	if last != nil {
		p.LastActivity = progression.DateOf(*last)
	}
	if p.Badges == nil {
		p.Badges = []string{}
	}
	return p, nil
}

func scanCourse(row pgx.Row) (Course, error) {
	var (
		c     Course
		level string
	)
	if err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&c.Description,
		&level,
		&c.SyllabusText,
		&c.TotalXP,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Course{}, err
	}
	c.LearningLevel = LearningLevel(level)
	return c, nil
}

func scanTopic(row pgx.Row) (Topic, error) {
	var (
		t          Topic
		difficulty string
	)
	if err := row.Scan(
		&t.ID,
		&t.CourseID,
		&t.Name,
		&t.Description,
		&difficulty,
		&t.EstimatedTime,
		&t.XPReward,
		&t.OrderIndex,
		&t.IsCompleted,
		&t.CompletedAt,
	); err != nil {
		return Topic{}, err
	}
	t.Difficulty = Difficulty(difficulty)
	return t, nil
}

// classify wraps err with the progression sentinel that describes it.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if progression.KindOf(err) != progression.KindUnknown {
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, progression.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgInvalidTextRepresentation:
			// A malformed id can never name an existing row.
			return fmt.Errorf("%s: %w", op, progression.ErrNotFound)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %w", op, progression.ErrNotFound, err)
		case pgCheckViolation:
			return fmt.Errorf("%s: %w: %w", op, progression.ErrValidation, err)
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, progression.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
