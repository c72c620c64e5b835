package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicdesk/scheduling-ledger/internal/docstore"
)

const CollectionAccounts = "accounts"

type account struct {
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// StoreProvider keeps bcrypt-hashed accounts in the document store,
// keyed by email so registration races resolve as insert conflicts.
type StoreProvider struct {
	store docstore.Store
}

func NewStoreProvider(store docstore.Store) *StoreProvider {
	return &StoreProvider{store: store}
}

func (p *StoreProvider) CreateAccount(ctx context.Context, email, password string) (uuid.UUID, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}

	acct := account{
		UserID:       uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	body, err := json.Marshal(acct)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode account: %w", err)
	}

	if _, err := p.store.Put(ctx, CollectionAccounts, email, body, 0); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return uuid.Nil, ErrEmailInUse
		}
		return uuid.Nil, fmt.Errorf("create account: %w", err)
	}
	return acct.UserID, nil
}

func (p *StoreProvider) Authenticate(ctx context.Context, email, password string) (uuid.UUID, error) {
	doc, err := p.store.Get(ctx, CollectionAccounts, email)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return uuid.Nil, ErrInvalidCredentials
		}
		return uuid.Nil, fmt.Errorf("load account: %w", err)
	}

	var acct account
	if err := json.Unmarshal(doc.Body, &acct); err != nil {
		return uuid.Nil, fmt.Errorf("decode account: %w", err)
	}

	if bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)) != nil {
		return uuid.Nil, ErrInvalidCredentials
	}
	return acct.UserID, nil
}
