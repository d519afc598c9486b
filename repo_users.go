package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Visibility selects which lifecycle states a lookup may return. Default
// visibility hides deactivated accounts so most call sites behave as if
// those users do not exist; flows that must see them (login, reactivation,
// admin tooling) opt into VisibilityAll.
type Visibility int

const (
	VisibilityDefault Visibility = iota
	VisibilityAll
)

// Consume queries are single conditional updates: the WHERE clause carries
// both the credential match and the liveness guard, and RETURNING tells us
// whether this caller won. Two concurrent redeemers race on the row update;
// exactly one sees a result.
var ConsumeReactivationTokenSQL = `UPDATE users
SET
	status = 'active',
	reactivation_token = NULL,
	reactivation_token_expires = NULL,
	reactivation_attempts = 0,
	last_reactivation_attempt = NULL,
	deactivated_at = NULL,
	deactivated_by = NULL,
	auto_deactivated_at = NULL,
	last_login = ?,
	last_activity = ?,
	updated_at = ?
WHERE
	reactivation_token = ?
	AND reactivation_token_expires > ?
RETURNING *;`

var ConsumePasswordResetByTokenSQL = `UPDATE users
SET
	password_hash = ?,
	reset_token = NULL,
	reset_short_code = NULL,
	reset_expires = NULL,
	updated_at = ?
WHERE
	reset_token = ?
	AND reset_expires > ?
	AND status NOT IN ('deactivated', 'auto_deactivated')
RETURNING *;`

var ConsumePasswordResetByCodeSQL = `UPDATE users
SET
	password_hash = ?,
	reset_token = NULL,
	reset_short_code = NULL,
	reset_expires = NULL,
	updated_at = ?
WHERE
	reset_short_code = ?
	AND reset_expires > ?
	AND status NOT IN ('deactivated', 'auto_deactivated')
RETURNING *;`

var ConsumeVerificationCodeSQL = `UPDATE users
SET
	status = 'active',
	verification_code = NULL,
	verification_code_expires = NULL,
	updated_at = ?
WHERE
	id = ?
	AND status = 'pending'
	AND verification_code = ?
	AND verification_code_expires > ?
RETURNING *;`

var IssueReactivationTokenSQL = `UPDATE users
SET
	reactivation_token = ?,
	reactivation_token_expires = ?,
	reactivation_attempts = reactivation_attempts + 1,
	last_reactivation_attempt = ?,
	updated_at = ?
WHERE
	id = ?
RETURNING *;`

type Users interface {
	repository.Repository[*User]

	GetByID(ctx context.Context, id uuid.UUID, vis Visibility) (*User, error)
	GetByEmail(ctx context.Context, email string, vis Visibility) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string, vis Visibility) (*User, error)
	GetByReactivationToken(ctx context.Context, token string) (*User, error)
	GetByResetShortCode(ctx context.Context, email, code string, now time.Time) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, from, to UserStatus, opts ...StatusUpdateOption) (*User, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, from, to UserStatus, opts ...StatusUpdateOption) (*User, error)

	SetVerificationCode(ctx context.Context, id uuid.UUID, cred IssuedCredential) error
	ConsumeVerificationCode(ctx context.Context, id uuid.UUID, code string, now time.Time) (*User, error)
	SetPasswordReset(ctx context.Context, id uuid.UUID, cred IssuedCredential) error
	ConsumePasswordReset(ctx context.Context, secret, passwordHash string, now time.Time) (*User, error)
	IssueReactivationToken(ctx context.Context, id uuid.UUID, cred IssuedCredential, at time.Time) (*User, error)
	ConsumeReactivationToken(ctx context.Context, token string, now time.Time) (*User, error)
	LinkExternalIdentity(ctx context.Context, id uuid.UUID, externalID, avatarURL string) error

	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error

	SelectInactive(ctx context.Context, cutoff time.Time, limit int) ([]*User, error)
	SelectDeactivated(ctx context.Context) ([]*User, error)
	CountByStatus(ctx context.Context) (map[UserStatus]int, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID, vis Visibility) (*User, error) {
	record := &User{}
	q := a.db.NewSelect().Model(record).
		Where("?TableAlias.id = ?", id)
	applyVisibility(q, vis)

	if err := q.Limit(1).Scan(ctx); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

func (a *users) GetByEmail(ctx context.Context, email string, vis Visibility) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email, vis)
}

// GetByEmailTx runs the email lookup on the given handle so callers inside
// a transaction see their own snapshot, keeping check-and-insert pairs on
// one connection.
func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string, vis Visibility) (*User, error) {
	record := &User{}
	q := tx.NewSelect().Model(record).
		Where("lower(?TableAlias.email) = ?", NormalizeEmail(email))
	applyVisibility(q, vis)

	if err := q.Limit(1).Scan(ctx); err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

func (a *users) GetByReactivationToken(ctx context.Context, token string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().Model(record).
		Where("?TableAlias.reactivation_token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"reactivation_token": TruncateSecret(token)})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

func (a *users) GetByResetShortCode(ctx context.Context, email, code string, now time.Time) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().Model(record).
		Where("lower(?TableAlias.email) = ?", NormalizeEmail(email)).
		Where("?TableAlias.reset_short_code = ?", code).
		Where("?TableAlias.reset_expires > ?", now).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, from, to UserStatus, opts ...StatusUpdateOption) (*User, error) {
	return a.UpdateStatusTx(ctx, a.db, id, from, to, opts...)
}

// UpdateStatusTx performs the guarded lifecycle write: one UPDATE whose
// WHERE clause pins both the id and the status the caller observed. A
// concurrent transition makes the guard miss and the caller gets
// ErrStaleTransition without any column having changed.
func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, from, to UserStatus, opts ...StatusUpdateOption) (*User, error) {
	change := &statusUpdate{
		record: &User{
			ID:        id,
			Status:    to,
			UpdatedAt: time.Now(),
		},
		columns: []string{"status", "updated_at"},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(change)
		}
	}

	res, err := tx.NewUpdate().Model(change.record).
		Column(change.columns...).
		Where("id = ?", id).
		Where("status = ?", from).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, WrapRepositoryError(err, "updating user status")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, WrapRepositoryError(err, "updating user status")
	}
	if rows == 0 {
		return nil, ErrStaleTransition.WithMetadata(map[string]any{
			"id":   id.String(),
			"from": from,
			"to":   to,
		})
	}

	change.record.EnsureStatus()
	return change.record, nil
}

func (a *users) SetVerificationCode(ctx context.Context, id uuid.UUID, cred IssuedCredential) error {
	record := &User{
		ID:                      id,
		VerificationCode:        &cred.Secret,
		VerificationCodeExpires: &cred.ExpiresAt,
		UpdatedAt:               time.Now(),
	}

	_, err := a.db.NewUpdate().Model(record).
		Column("verification_code", "verification_code_expires", "updated_at").
		Where("id = ?", id).
		Exec(ctx)
	return WrapRepositoryError(err, "storing verification code")
}

func (a *users) ConsumeVerificationCode(ctx context.Context, id uuid.UUID, code string, now time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, a.db, ConsumeVerificationCodeSQL, now, id, code, now)
	if err != nil {
		return nil, WrapRepositoryError(err, "consuming verification code")
	}
	if len(res) == 0 {
		return nil, ErrCredentialInvalid
	}

	res[0].EnsureStatus()
	return res[0], nil
}

func (a *users) SetPasswordReset(ctx context.Context, id uuid.UUID, cred IssuedCredential) error {
	record := &User{
		ID:           id,
		ResetToken:   &cred.Secret,
		ResetExpires: &cred.ExpiresAt,
		UpdatedAt:    time.Now(),
	}
	if cred.ShortCode != "" {
		record.ResetShortCode = &cred.ShortCode
	}

	_, err := a.db.NewUpdate().Model(record).
		Column("reset_token", "reset_short_code", "reset_expires", "updated_at").
		Where("id = ?", id).
		Exec(ctx)
	return WrapRepositoryError(err, "storing password reset")
}

// ConsumePasswordReset redeems either the full token or the short code,
// dispatching on secret length. Both columns are cleared together so a
// superseded or already-used pair can never be redeemed twice.
func (a *users) ConsumePasswordReset(ctx context.Context, secret, passwordHash string, now time.Time) (*User, error) {
	sql := ConsumePasswordResetByTokenSQL
	if IsShortSecret(secret) {
		sql = ConsumePasswordResetByCodeSQL
	}

	res, err := a.Repository.RawTx(ctx, a.db, sql, passwordHash, now, secret, now)
	if err != nil {
		return nil, WrapRepositoryError(err, "consuming password reset")
	}
	if len(res) == 0 {
		return nil, ErrCredentialInvalid
	}

	res[0].EnsureStatus()
	return res[0], nil
}

func (a *users) IssueReactivationToken(ctx context.Context, id uuid.UUID, cred IssuedCredential, at time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, a.db, IssueReactivationTokenSQL,
		cred.Secret, cred.ExpiresAt, at, at, id)
	if err != nil {
		return nil, WrapRepositoryError(err, "issuing reactivation token")
	}
	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	res[0].EnsureStatus()
	return res[0], nil
}

func (a *users) ConsumeReactivationToken(ctx context.Context, token string, now time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, a.db, ConsumeReactivationTokenSQL,
		now, now, now, token, now)
	if err != nil {
		return nil, WrapRepositoryError(err, "consuming reactivation token")
	}
	if len(res) == 0 {
		return nil, ErrCredentialInvalid
	}

	res[0].EnsureStatus()
	return res[0], nil
}

func (a *users) LinkExternalIdentity(ctx context.Context, id uuid.UUID, externalID, avatarURL string) error {
	record := &User{
		ID:        id,
		AvatarURL: avatarURL,
		UpdatedAt: time.Now(),
	}
	if externalID != "" {
		record.ExternalID = &externalID
	}

	columns := []string{"external_id", "updated_at"}
	if avatarURL != "" {
		columns = append(columns, "avatar_url")
	}

	_, err := a.db.NewUpdate().Model(record).
		Column(columns...).
		Where("id = ?", id).
		Exec(ctx)
	return WrapRepositoryError(err, "linking external identity")
}

func (a *users) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	record := &User{
		ID:           id,
		LastLogin:    &at,
		LastActivity: at,
		UpdatedAt:    at,
	}

	_, err := a.db.NewUpdate().Model(record).
		Column("last_login", "last_activity", "updated_at").
		Where("id = ?", id).
		Exec(ctx)
	return WrapRepositoryError(err, "tracking login")
}

func (a *users) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	record := &User{
		ID:           id,
		LastActivity: at,
		UpdatedAt:    at,
	}

	_, err := a.db.NewUpdate().Model(record).
		Column("last_activity", "updated_at").
		Where("id = ?", id).
		Exec(ctx)
	return WrapRepositoryError(err, "tracking activity")
}

// SelectInactive returns accounts whose last activity predates the cutoff
// and that are not already deactivated. The sweeper feeds on this.
func (a *users) SelectInactive(ctx context.Context, cutoff time.Time, limit int) ([]*User, error) {
	var records []*User
	q := a.db.NewSelect().Model(&records).
		Where("?TableAlias.last_activity < ?", cutoff).
		Where("?TableAlias.status NOT IN (?)", bun.In([]UserStatus{
			UserStatusDeactivated,
			UserStatusAutoDeactivated,
		})).
		Order("last_activity ASC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, WrapRepositoryError(err, "selecting inactive users")
	}

	for _, r := range records {
		r.EnsureStatus()
	}
	return records, nil
}

func (a *users) SelectDeactivated(ctx context.Context) ([]*User, error) {
	var records []*User
	err := a.db.NewSelect().Model(&records).
		Where("?TableAlias.status IN (?)", bun.In([]UserStatus{
			UserStatusDeactivated,
			UserStatusAutoDeactivated,
		})).
		Order("deactivated_at DESC NULLS LAST").
		Scan(ctx)
	if err != nil {
		return nil, WrapRepositoryError(err, "selecting deactivated users")
	}

	for _, r := range records {
		r.EnsureStatus()
	}
	return records, nil
}

func (a *users) CountByStatus(ctx context.Context) (map[UserStatus]int, error) {
	var rows []struct {
		Status UserStatus `bun:"status"`
		Total  int        `bun:"total"`
	}

	err := a.db.NewSelect().Model((*User)(nil)).
		ColumnExpr("status").
		ColumnExpr("count(*) AS total").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, WrapRepositoryError(err, "counting users by status")
	}

	counts := make(map[UserStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// StatusUpdateOption attaches column changes to a guarded status update.
type StatusUpdateOption func(*statusUpdate)

type statusUpdate struct {
	record  *User
	columns []string
}

func (s *statusUpdate) set(columns ...string) {
	s.columns = append(s.columns, columns...)
}

// WithDeactivationStamp records when and, for admin actions, by whom the
// account was deactivated.
func WithDeactivationStamp(at time.Time, by *uuid.UUID) StatusUpdateOption {
	return func(s *statusUpdate) {
		s.record.DeactivatedAt = &at
		s.record.DeactivatedBy = by
		s.set("deactivated_at", "deactivated_by")
	}
}

// WithAutoDeactivationStamp records when the sweeper retired the account.
func WithAutoDeactivationStamp(at time.Time) StatusUpdateOption {
	return func(s *statusUpdate) {
		s.record.AutoDeactivatedAt = &at
		s.set("auto_deactivated_at")
	}
}

// WithDeactivationCleared wipes deactivation stamps and the reactivation
// credential when an account returns to active.
func WithDeactivationCleared() StatusUpdateOption {
	return func(s *statusUpdate) {
		s.record.DeactivatedAt = nil
		s.record.DeactivatedBy = nil
		s.record.AutoDeactivatedAt = nil
		s.record.ReactivationToken = nil
		s.record.ReactivationTokenExpires = nil
		s.record.ReactivationAttempts = 0
		s.record.LastReactivationAttempt = nil
		s.set("deactivated_at", "deactivated_by", "auto_deactivated_at",
			"reactivation_token", "reactivation_token_expires",
			"reactivation_attempts", "last_reactivation_attempt")
	}
}

// WithReactivationCredential stores a fresh reactivation token alongside a
// transition into a deactivated state.
func WithReactivationCredential(cred IssuedCredential) StatusUpdateOption {
	return func(s *statusUpdate) {
		s.record.ReactivationToken = &cred.Secret
		s.record.ReactivationTokenExpires = &cred.ExpiresAt
		s.record.ReactivationAttempts = 0
		s.set("reactivation_token", "reactivation_token_expires", "reactivation_attempts")
	}
}

// WithActivityStamp touches last activity as part of a status change.
func WithActivityStamp(at time.Time) StatusUpdateOption {
	return func(s *statusUpdate) {
		s.record.LastActivity = at
		s.set("last_activity")
	}
}

func applyVisibility(q *bun.SelectQuery, vis Visibility) *bun.SelectQuery {
	if vis == VisibilityAll {
		return q
	}
	return q.Where("?TableAlias.status NOT IN (?)", bun.In([]UserStatus{
		UserStatusDeactivated,
		UserStatusAutoDeactivated,
	}))
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := time.Now()
	if record.LastActivity.IsZero() {
		record.LastActivity = now
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
}
