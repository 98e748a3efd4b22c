package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/rumor-ml/commons.systems/banksync/internal/domain"
)

// Client wraps Firestore with banksync-specific operations
type Client struct {
	Firestore *firestore.Client
	Auth      *auth.Client
	projectID string
}

// NewClient creates a new Firestore client
func NewClient(ctx context.Context, projectID string) (*Client, error) {
	conf := &firebase.Config{ProjectID: projectID}

	// Application Default Credentials unless an explicit file is given
	var opts []option.ClientOption
	credsPath := ""
	if credsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credsPath))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		firestoreClient.Close()
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		Auth:      authClient,
		projectID: projectID,
	}, nil
}

// Close closes the Firestore client
func (c *Client) Close() error {
	return c.Firestore.Close()
}

// Account represents a synced bank account in Firestore
type Account struct {
	ID         string    `firestore:"id"`
	UserID     string    `firestore:"userId"`
	Title      string    `firestore:"title"`
	Type       string    `firestore:"type"`
	Instrument string    `firestore:"instrument"`
	Balance    float64   `firestore:"balance"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// Transaction represents a normalized bank transaction in Firestore.
// Movements are flattened to the owned-account leg; the full movement
// list lives in the JSON output and the local archive.
type Transaction struct {
	ID        string    `firestore:"id"`
	UserID    string    `firestore:"userId"`
	AccountID string    `firestore:"accountId"`
	Date      string    `firestore:"date"`
	Comment   string    `firestore:"comment"`
	Category  string    `firestore:"category,omitempty"`
	Hold      bool      `firestore:"hold"`
	Sum       float64   `firestore:"sum"`
	Fee       float64   `firestore:"fee"`
	Movements int       `firestore:"movements"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// Validate checks if the Transaction has valid data
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction ID is required")
	}
	if t.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if t.AccountID == "" {
		return fmt.Errorf("account ID is required")
	}
	if _, err := time.Parse("2006-01-02", t.Date); err != nil {
		return fmt.Errorf("invalid date format (expected YYYY-MM-DD): %w", err)
	}
	return nil
}

// FromDomain flattens a normalized transaction to its Firestore shape.
// The first owned movement supplies account, sum and fee; id is the bank
// entry id so repeat syncs overwrite instead of duplicating.
func FromDomain(txn domain.Transaction, userID string) (*Transaction, error) {
	own := txn.OwnMovements()
	if len(own) == 0 {
		return nil, fmt.Errorf("transaction has no owned movement")
	}
	lead := own[0]

	return &Transaction{
		ID:        *lead.ID,
		UserID:    userID,
		AccountID: lead.Account.ID,
		Date:      txn.Date.Format("2006-01-02"),
		Comment:   txn.Comment,
		Category:  string(txn.Category),
		Hold:      txn.Hold,
		Sum:       lead.Sum,
		Fee:       lead.Fee,
		Movements: len(txn.Movements),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// GetTransactions retrieves all transactions for a user, newest first
func (c *Client) GetTransactions(ctx context.Context, userID string) ([]*Transaction, error) {
	iter := c.Firestore.Collection("banksync-transactions").
		Where("userId", "==", userID).
		OrderBy("date", firestore.Desc).
		Documents(ctx)

	var transactions []*Transaction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate transactions for user %s: %w", userID, err)
		}

		var txn Transaction
		if err := doc.DataTo(&txn); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		transactions = append(transactions, &txn)
	}

	return transactions, nil
}

// CreateTransaction creates or overwrites a transaction
func (c *Client) CreateTransaction(ctx context.Context, txn *Transaction) error {
	if err := txn.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	_, err := c.Firestore.Collection("banksync-transactions").Doc(txn.ID).Set(ctx, txn)
	return err
}

// GetAccounts retrieves all accounts for a user
func (c *Client) GetAccounts(ctx context.Context, userID string) ([]*Account, error) {
	iter := c.Firestore.Collection("banksync-accounts").
		Where("userId", "==", userID).
		Documents(ctx)

	var accounts []*Account
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate accounts for user %s: %w", userID, err)
		}

		var acc Account
		if err := doc.DataTo(&acc); err != nil {
			return nil, fmt.Errorf("failed to parse account: %w", err)
		}
		accounts = append(accounts, &acc)
	}

	return accounts, nil
}

// UpsertAccount creates or refreshes an account record
func (c *Client) UpsertAccount(ctx context.Context, acc *Account) error {
	if acc.ID == "" || acc.UserID == "" {
		return fmt.Errorf("account ID and user ID are required")
	}
	_, err := c.Firestore.Collection("banksync-accounts").Doc(acc.ID).Set(ctx, acc)
	return err
}

// PublishResult pushes a full sync result to Firestore for one user.
// Accounts are upserted first so transactions never reference an account
// the reader cannot see. Returns the number of transactions written.
func (c *Client) PublishResult(ctx context.Context, result *domain.SyncResult, userID string) (int, error) {
	if result == nil {
		return 0, fmt.Errorf("result cannot be nil")
	}

	now := time.Now().UTC()
	for _, acc := range result.Accounts() {
		fsAcc := &Account{
			ID:         acc.ID,
			UserID:     userID,
			Title:      acc.Title,
			Type:       string(acc.Type),
			Instrument: acc.Instrument,
			Balance:    acc.Balance,
			UpdatedAt:  now,
		}
		if err := c.UpsertAccount(ctx, fsAcc); err != nil {
			return 0, fmt.Errorf("failed to upsert account %s: %w", acc.ID, err)
		}
	}

	written := 0
	for i, txn := range result.Transactions() {
		fsTxn, err := FromDomain(txn, userID)
		if err != nil {
			return written, fmt.Errorf("failed to flatten transaction %d: %w", i, err)
		}
		if err := c.CreateTransaction(ctx, fsTxn); err != nil {
			return written, fmt.Errorf("failed to write transaction %s: %w", fsTxn.ID, err)
		}
		written++
	}

	return written, nil
}

// SyncSessionStatus represents the status of a sync session
type SyncSessionStatus string

const (
	SyncSessionStatusPending    SyncSessionStatus = "pending"
	SyncSessionStatusProcessing SyncSessionStatus = "processing"
	SyncSessionStatusCompleted  SyncSessionStatus = "completed"
	SyncSessionStatusError      SyncSessionStatus = "error"
	SyncSessionStatusCancelled  SyncSessionStatus = "cancelled"
)

// SyncSession represents a bank sync session in Firestore
type SyncSession struct {
	ID           string            `firestore:"id"`
	UserID       string            `firestore:"userId"`
	Status       SyncSessionStatus `firestore:"status"`
	AccountCount int               `firestore:"accountCount"`
	Stats        map[string]any    `firestore:"stats"`
	CompletedAt  *time.Time        `firestore:"completedAt,omitempty"`
	Error        string            `firestore:"error,omitempty"`
	CreatedAt    time.Time         `firestore:"createdAt"`
}

// Validate checks if the SyncSession has valid data
func (s *SyncSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("user ID is required")
	}

	validStatuses := map[SyncSessionStatus]bool{
		SyncSessionStatusPending:    true,
		SyncSessionStatusProcessing: true,
		SyncSessionStatusCompleted:  true,
		SyncSessionStatusError:      true,
		SyncSessionStatusCancelled:  true,
	}
	if !validStatuses[s.Status] {
		return fmt.Errorf("invalid status: %s", s.Status)
	}

	if s.AccountCount < 0 {
		return fmt.Errorf("account count cannot be negative")
	}

	return nil
}

// CreateSyncSession creates a new sync session
func (c *Client) CreateSyncSession(ctx context.Context, session *SyncSession) error {
	_, err := c.Firestore.Collection("banksync-sessions").Doc(session.ID).Set(ctx, session)
	return err
}

// UpdateSyncSession updates an existing sync session
func (c *Client) UpdateSyncSession(ctx context.Context, session *SyncSession) error {
	_, err := c.Firestore.Collection("banksync-sessions").Doc(session.ID).Set(ctx, session)
	return err
}

// GetSyncSession retrieves a sync session by ID
func (c *Client) GetSyncSession(ctx context.Context, sessionID string) (*SyncSession, error) {
	doc, err := c.Firestore.Collection("banksync-sessions").Doc(sessionID).Get(ctx)
	if err != nil {
		return nil, err
	}

	var session SyncSession
	if err := doc.DataTo(&session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}

	return &session, nil
}

// ListSyncSessions retrieves recent sync sessions for a user
func (c *Client) ListSyncSessions(ctx context.Context, userID string) ([]*SyncSession, error) {
	iter := c.Firestore.Collection("banksync-sessions").
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		Limit(50).
		Documents(ctx)

	var sessions []*SyncSession
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate sync sessions for user %s: %w", userID, err)
		}

		var sess SyncSession
		if err := doc.DataTo(&sess); err != nil {
			return nil, fmt.Errorf("failed to parse session: %w", err)
		}
		sessions = append(sessions, &sess)
	}

	return sessions, nil
}
