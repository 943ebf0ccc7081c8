package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"gitea.kood.tech/petrkubec/soulmate/backend/filter"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot reach the database: %w", err)
	}
	return db, nil
}

// Postgres implements Store with raw SQL over database/sql.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// withTx wraps fn in a transaction: COMMIT on success, ROLLBACK on an error
// or a panic.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// mapErr translates driver errors into the package's sentinel errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case "23503", "22P02": // foreign_key_violation, invalid_text_representation
			return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Message)
		}
	}
	return err
}

// --- users ---

func (p *Postgres) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	u := User{Email: email, PasswordHash: passwordHash}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, last_online)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at, last_online
	`, email, passwordHash).Scan(&u.ID, &u.CreatedAt, &u.LastOnline)
	if err != nil {
		return User{}, mapErr(err)
	}
	return u, nil
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, last_online
		FROM users WHERE email = $1
	`, email))
}

func (p *Postgres) UserByID(ctx context.Context, id string) (User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, last_online
		FROM users WHERE id = $1
	`, id))
}

func (p *Postgres) scanUser(row *sql.Row) (User, error) {
	var u User
	var lastOnline sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &lastOnline); err != nil {
		return User{}, mapErr(err)
	}
	if lastOnline.Valid {
		u.LastOnline = &lastOnline.Time
	}
	return u, nil
}

func (p *Postgres) TouchLastOnline(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE users SET last_online = NOW() WHERE id = $1`, id)
	return mapErr(err)
}

// --- profiles ---

const profileCardColumns = `id, profile_id, first_name, last_name, age, location, occupation, education, profile_image`

func scanCard(rows *sql.Rows) (ProfileCard, error) {
	var c ProfileCard
	err := rows.Scan(&c.ID, &c.ProfileID, &c.FirstName, &c.LastName, &c.Age,
		&c.Location, &c.Occupation, &c.Education, &c.ProfileImage)
	return c, err
}

// ListProfiles returns the profiles matching pred, newest first. An empty
// predicate returns every profile.
func (p *Postgres) ListProfiles(ctx context.Context, pred filter.Predicate) ([]ProfileCard, error) {
	query := `SELECT ` + profileCardColumns + ` FROM user_profiles`
	where, args := pred.SQL(1)
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", mapErr(err))
	}
	defer rows.Close()

	cards := []ProfileCard{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// ProfileCards loads cards for the given owners in one query. Unknown ids
// are absent from the result.
func (p *Postgres) ProfileCards(ctx context.Context, profileIDs []string) (map[string]ProfileCard, error) {
	out := make(map[string]ProfileCard, len(profileIDs))
	if len(profileIDs) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+profileCardColumns+` FROM user_profiles WHERE profile_id = ANY($1::uuid[])`,
		pq.Array(profileIDs))
	if err != nil {
		return nil, fmt.Errorf("load profile cards: %w", mapErr(err))
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out[c.ProfileID] = c
	}
	return out, rows.Err()
}

func (p *Postgres) ProfileDetail(ctx context.Context, profileID string) (ProfileDetail, error) {
	var d ProfileDetail
	err := p.db.QueryRowContext(ctx, `
		SELECT `+profileCardColumns+`, bio, height, created_at, updated_at
		FROM user_profiles WHERE profile_id = $1
	`, profileID).Scan(&d.ID, &d.ProfileID, &d.FirstName, &d.LastName, &d.Age,
		&d.Location, &d.Occupation, &d.Education, &d.ProfileImage,
		&d.Bio, &d.Height, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return ProfileDetail{}, mapErr(err)
	}

	d.Images = []ProfileImage{}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, image_url, is_primary, order_index
		FROM profile_images WHERE profile_id = $1
		ORDER BY order_index, id
	`, profileID)
	if err != nil {
		return ProfileDetail{}, fmt.Errorf("load profile images: %w", err)
	}
	for rows.Next() {
		var img ProfileImage
		if err := rows.Scan(&img.ID, &img.ImageURL, &img.IsPrimary, &img.OrderIndex); err != nil {
			rows.Close()
			return ProfileDetail{}, fmt.Errorf("scan profile image: %w", err)
		}
		d.Images = append(d.Images, img)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return ProfileDetail{}, fmt.Errorf("read profile images: %w", err)
	}

	d.Interests = []ProfileInterest{}
	rows, err = p.db.QueryContext(ctx, `
		SELECT id, interest FROM profile_interests WHERE profile_id = $1 ORDER BY interest
	`, profileID)
	if err != nil {
		return ProfileDetail{}, fmt.Errorf("load profile interests: %w", err)
	}
	for rows.Next() {
		var in ProfileInterest
		if err := rows.Scan(&in.ID, &in.Interest); err != nil {
			rows.Close()
			return ProfileDetail{}, fmt.Errorf("scan profile interest: %w", err)
		}
		d.Interests = append(d.Interests, in)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return ProfileDetail{}, fmt.Errorf("read profile interests: %w", err)
	}

	d.Preferences = []ProfilePreference{}
	rows, err = p.db.QueryContext(ctx, `
		SELECT id, age_range, location_preference, education_preference, occupation_preference
		FROM profile_preferences WHERE profile_id = $1
	`, profileID)
	if err != nil {
		return ProfileDetail{}, fmt.Errorf("load profile preferences: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pr ProfilePreference
		if err := rows.Scan(&pr.ID, &pr.AgeRange, &pr.LocationPreference,
			&pr.EducationPreference, &pr.OccupationPreference); err != nil {
			return ProfileDetail{}, fmt.Errorf("scan profile preference: %w", err)
		}
		d.Preferences = append(d.Preferences, pr)
	}
	return d, rows.Err()
}

// AddProfileImage appends an image to the owner's gallery. The first image
// becomes primary and is mirrored to the card and the account avatar.
func (p *Postgres) AddProfileImage(ctx context.Context, profileID, imageURL string) (ProfileImage, error) {
	var img ProfileImage
	err := withTx(ctx, p.db, func(tx *sql.Tx) error {
		// lock the owner row so concurrent uploads get distinct order indexes
		var ownerID string
		if err := tx.QueryRowContext(ctx,
			`SELECT profile_id FROM user_profiles WHERE profile_id = $1 FOR UPDATE`, profileID,
		).Scan(&ownerID); err != nil {
			return mapErr(err)
		}

		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM profile_images WHERE profile_id = $1`, profileID,
		).Scan(&count); err != nil {
			return err
		}

		img = ProfileImage{ImageURL: imageURL, IsPrimary: count == 0, OrderIndex: count}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO profile_images (profile_id, image_url, is_primary, order_index)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, profileID, imageURL, img.IsPrimary, img.OrderIndex).Scan(&img.ID); err != nil {
			return mapErr(err)
		}

		if !img.IsPrimary {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_profiles SET profile_image = $1, updated_at = NOW() WHERE profile_id = $2
		`, imageURL, profileID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE profiles SET avatar_url = $1 WHERE id = $2`, imageURL, profileID)
		return err
	})
	if err != nil {
		return ProfileImage{}, err
	}
	return img, nil
}

// SaveProfile writes a profile with its related rows, replacing any that
// exist for the owner. Used by the seeder.
func (p *Postgres) SaveProfile(ctx context.Context, d ProfileDetail) error {
	return withTx(ctx, p.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_profiles
				(profile_id, first_name, last_name, age, location, occupation, education, bio, height, profile_image)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (profile_id) DO UPDATE SET
				first_name = EXCLUDED.first_name,
				last_name = EXCLUDED.last_name,
				age = EXCLUDED.age,
				location = EXCLUDED.location,
				occupation = EXCLUDED.occupation,
				education = EXCLUDED.education,
				bio = EXCLUDED.bio,
				height = EXCLUDED.height,
				profile_image = EXCLUDED.profile_image,
				updated_at = NOW()
		`, d.ProfileID, d.FirstName, d.LastName, d.Age, d.Location, d.Occupation,
			d.Education, d.Bio, d.Height, d.ProfileImage); err != nil {
			return mapErr(err)
		}

		for _, table := range []string{"profile_images", "profile_interests", "profile_preferences"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE profile_id = $1`, d.ProfileID); err != nil {
				return err
			}
		}
		for _, img := range d.Images {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO profile_images (profile_id, image_url, is_primary, order_index)
				VALUES ($1, $2, $3, $4)
			`, d.ProfileID, img.ImageURL, img.IsPrimary, img.OrderIndex); err != nil {
				return err
			}
		}
		for _, in := range d.Interests {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO profile_interests (profile_id, interest) VALUES ($1, $2)
			`, d.ProfileID, in.Interest); err != nil {
				return err
			}
		}
		for _, pr := range d.Preferences {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO profile_preferences
					(profile_id, age_range, location_preference, education_preference, occupation_preference)
				VALUES ($1, $2, $3, $4, $5)
			`, d.ProfileID, pr.AgeRange, pr.LocationPreference, pr.EducationPreference, pr.OccupationPreference); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- account ---

const accountColumns = `id, full_name, phone, gender, date_of_birth, height, marital_status,
	religion, mother_tongue, location, education, education_details, occupation,
	occupation_details, annual_income, about, family_details, diet, smoking, drinking,
	avatar_url, profile_completion, updated_at`

func (p *Postgres) Account(ctx context.Context, userID string) (Account, error) {
	var a Account
	err := p.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM profiles WHERE id = $1`, userID).
		Scan(accountDest(&a)...)
	if err != nil {
		return Account{}, mapErr(err)
	}
	return a, nil
}

// UpsertAccount writes the complete record; every column is replaced.
func (p *Postgres) UpsertAccount(ctx context.Context, a Account) (Account, error) {
	cols := strings.Split(strings.Join(strings.Fields(accountColumns), ""), ",")
	// updated_at is assigned here, not by the caller
	cols = cols[:len(cols)-1]

	placeholders := make([]string, len(cols))
	updates := make([]string, 0, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c != "id" {
			updates = append(updates, c+" = EXCLUDED."+c)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO profiles (%s, updated_at)
		VALUES (%s, NOW())
		ON CONFLICT (id) DO UPDATE SET %s, updated_at = NOW()
		RETURNING `+accountColumns,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))

	args := accountArgs(a)
	var out Account
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(accountDest(&out)...); err != nil {
		return Account{}, mapErr(err)
	}
	return out, nil
}

func accountDest(a *Account) []any {
	return []any{
		&a.ID, &a.FullName, &a.Phone, &a.Gender, &a.DateOfBirth, &a.Height, &a.MaritalStatus,
		&a.Religion, &a.MotherTongue, &a.Location, &a.Education, &a.EducationDetails, &a.Occupation,
		&a.OccupationDetails, &a.AnnualIncome, &a.About, &a.FamilyDetails, &a.Diet, &a.Smoking, &a.Drinking,
		&a.AvatarURL, &a.ProfileCompletion, &a.UpdatedAt,
	}
}

// accountArgs matches accountColumns without updated_at.
func accountArgs(a Account) []any {
	return []any{
		a.ID, a.FullName, a.Phone, a.Gender, a.DateOfBirth, a.Height, a.MaritalStatus,
		a.Religion, a.MotherTongue, a.Location, a.Education, a.EducationDetails, a.Occupation,
		a.OccupationDetails, a.AnnualIncome, a.About, a.FamilyDetails, a.Diet, a.Smoking, a.Drinking,
		a.AvatarURL, a.ProfileCompletion,
	}
}

// --- interactions ---

// RecordInteraction appends one row. Repeated calls append repeated rows.
func (p *Postgres) RecordInteraction(ctx context.Context, in NewInteraction) (Interaction, error) {
	out := Interaction{
		FromProfileID: in.FromProfileID,
		ToProfileID:   in.ToProfileID,
		Action:        in.Action,
		Message:       in.Message,
	}
	var msg sql.NullString
	if in.Message != "" {
		msg = sql.NullString{String: in.Message, Valid: true}
	}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO profile_interactions (from_profile_id, to_profile_id, action, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, in.FromProfileID, in.ToProfileID, string(in.Action), msg).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return Interaction{}, mapErr(err)
	}
	return out, nil
}

func (p *Postgres) InteractionsFrom(ctx context.Context, fromProfileID string) ([]Interaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, from_profile_id, to_profile_id, action, COALESCE(message, ''), created_at
		FROM profile_interactions
		WHERE from_profile_id = $1
		ORDER BY created_at DESC, id
	`, fromProfileID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", mapErr(err))
	}
	defer rows.Close()

	out := []Interaction{}
	for rows.Next() {
		var it Interaction
		var action string
		if err := rows.Scan(&it.ID, &it.FromProfileID, &it.ToProfileID, &action, &it.Message, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		it.Action = Action(action)
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- notifications & messages ---

func (p *Postgres) CreateNotification(ctx context.Context, userID, kind, actorID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, kind, actor_id) VALUES ($1, $2, $3)
	`, userID, kind, actorID)
	return mapErr(err)
}

func (p *Postgres) CreateMessage(ctx context.Context, senderID, receiverID, body string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO messages (sender_id, receiver_id, body) VALUES ($1, $2, $3)
	`, senderID, receiverID, body)
	return mapErr(err)
}

func (p *Postgres) UnreadNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read
	`, userID).Scan(&n)
	return n, mapErr(err)
}

func (p *Postgres) UnreadMessages(ctx context.Context, userID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND NOT read
	`, userID).Scan(&n)
	return n, mapErr(err)
}

var _ Store = (*Postgres)(nil)
