package notify

import (
	"context"

	"github.com/spec-kit/workorder-service/internal/domain"
	"github.com/spec-kit/workorder-service/internal/repository"
)

// IdentityResolver translates person identities into account identities.
// A person has zero or one account; persons without an account simply never
// receive notifications.
type IdentityResolver struct {
	persons repository.PersonRepository
}

// NewIdentityResolver constructs the resolver.
func NewIdentityResolver(persons repository.PersonRepository) *IdentityResolver {
	return &IdentityResolver{persons: persons}
}

// AccountForPerson returns the linked account, or nil when the person has no login.
func (r *IdentityResolver) AccountForPerson(ctx context.Context, personID string) (*domain.Account, error) {
	if personID == "" || personID == domain.SystemActorID {
		return nil, nil
	}
	return r.persons.AccountByPersonID(ctx, personID)
}

// AccountsForPersons batch-resolves and deduplicates. Input person ids may
// repeat (a requester who is also the handler); each resulting account
// appears once.
func (r *IdentityResolver) AccountsForPersons(ctx context.Context, personIDs []string) ([]domain.Account, error) {
	unique := make([]string, 0, len(personIDs))
	seen := make(map[string]struct{}, len(personIDs))
	for _, id := range personIDs {
		if id == "" || id == domain.SystemActorID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	accounts, err := r.persons.AccountsByPersonIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]struct{}, len(accounts))
	deduped := make([]domain.Account, 0, len(accounts))
	for _, account := range accounts {
		if _, ok := byID[account.ID]; ok {
			continue
		}
		byID[account.ID] = struct{}{}
		deduped = append(deduped, account)
	}
	return deduped, nil
}
