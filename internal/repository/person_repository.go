package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/workorder-service/internal/domain"
)

// PersonRepository resolves persons and their linked accounts.
type PersonRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Person, error)
	AccountByPersonID(ctx context.Context, personID string) (*domain.Account, error)
	AccountsByPersonIDs(ctx context.Context, personIDs []string) ([]domain.Account, error)
	AccountByID(ctx context.Context, id string) (*domain.Account, error)
}

type personRepository struct {
	pool *pgxpool.Pool
}

// NewPersonRepository instantiates repository.
func NewPersonRepository(pool *pgxpool.Pool) PersonRepository {
	return &personRepository{pool: pool}
}

func (r *personRepository) GetByID(ctx context.Context, id string) (*domain.Person, error) {
	const query = `
        SELECT id, name, unit_id, phone, active, created_at, updated_at
        FROM persons WHERE id=$1`
	var person domain.Person
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&person.ID,
		&person.Name,
		&person.UnitID,
		&person.Phone,
		&person.Active,
		&person.CreatedAt,
		&person.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &person, nil
}

// AccountByPersonID returns nil without error when the person has no login.
func (r *personRepository) AccountByPersonID(ctx context.Context, personID string) (*domain.Account, error) {
	const query = `
        SELECT id, person_id, username, active, created_at, updated_at
        FROM accounts WHERE person_id=$1 AND active=TRUE`
	var account domain.Account
	err := r.pool.QueryRow(ctx, query, personID).Scan(
		&account.ID,
		&account.PersonID,
		&account.Username,
		&account.Active,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *personRepository) AccountsByPersonIDs(ctx context.Context, personIDs []string) ([]domain.Account, error) {
	if len(personIDs) == 0 {
		return nil, nil
	}
	const query = `
        SELECT id, person_id, username, active, created_at, updated_at
        FROM accounts WHERE person_id = ANY($1) AND active=TRUE`
	rows, err := r.pool.Query(ctx, query, personIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(
			&account.ID,
			&account.PersonID,
			&account.Username,
			&account.Active,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, account)
	}
	return result, rows.Err()
}

func (r *personRepository) AccountByID(ctx context.Context, id string) (*domain.Account, error) {
	const query = `
        SELECT id, person_id, username, active, created_at, updated_at
        FROM accounts WHERE id=$1`
	var account domain.Account
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.PersonID,
		&account.Username,
		&account.Active,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &account, nil
}
